package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"go-utility/models"
	"go-utility/store"
)

// ServiceController reads and changes the per-service charges. Changes only
// affect bills priced afterwards; stored bills keep their price.
type ServiceController struct {
	store *store.Store
	log   *zap.Logger
}

func NewServiceController(st *store.Store, log *zap.Logger) *ServiceController {
	return &ServiceController{store: st, log: log.Named("services")}
}

func (s *ServiceController) GetUnitPrice(t models.ServiceType) (float64, error) {
	r, err := s.rate(t)
	return r.UnitCharge, err
}

func (s *ServiceController) GetServicePrice(t models.ServiceType) (float64, error) {
	r, err := s.rate(t)
	return r.ServiceCharge, err
}

func (s *ServiceController) UpdateUnitCharges(ctx context.Context, t models.ServiceType, v float64) error {
	return s.UpdateCharges(ctx, t, &v, nil)
}

func (s *ServiceController) UpdateServiceCharges(ctx context.Context, t models.ServiceType, v float64) error {
	return s.UpdateCharges(ctx, t, nil, &v)
}

// UpdateCharges sets whichever of unit and service is non-nil. Both values are
// checked first, so either both are applied and saved or neither is.
func (s *ServiceController) UpdateCharges(ctx context.Context, t models.ServiceType, unit, service *float64) error {
	if !t.Valid() {
		_, err := models.ParseServiceType(string(t))
		return err
	}
	if unit == nil && service == nil {
		return fmt.Errorf("%w: no charge given", models.ErrInvalidInput)
	}

	var updated models.Rate
	err := s.store.Update(ctx, func(st *store.State) error {
		r := st.Rates.Rate(t)
		if unit != nil {
			r.UnitCharge = *unit
		}
		if service != nil {
			r.ServiceCharge = *service
		}
		if err := st.Rates.Set(t, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("Updated charges",
		zap.String("service_type", t.String()),
		zap.Float64("unit_charge", updated.UnitCharge),
		zap.Float64("service_charge", updated.ServiceCharge),
	)
	return nil
}

// Rates returns a copy of the current charges for every service type.
func (s *ServiceController) Rates() map[models.ServiceType]models.Rate {
	var out map[models.ServiceType]models.Rate
	_ = s.store.View(func(st *store.State) error {
		out = st.Rates.Rates()
		return nil
	})
	return out
}

func (s *ServiceController) rate(t models.ServiceType) (models.Rate, error) {
	if !t.Valid() {
		_, err := models.ParseServiceType(string(t))
		return models.Rate{}, err
	}
	var r models.Rate
	_ = s.store.View(func(st *store.State) error {
		r = st.Rates.Rate(t)
		return nil
	})
	return r, nil
}
