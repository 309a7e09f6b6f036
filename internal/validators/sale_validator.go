package validators

import (
	"transcomarapa/internal/models"
	"transcomarapa/internal/services"
)

// ValidateTicketSaleRequest runs the structural checks a handler can do
// before touching storage; seat range and availability are the service's job.
// Tag-driven rules come from ValidateStruct, the ObjectID presence checks are
// done by hand because `required` cannot see a zero ObjectID.
func ValidateTicketSaleRequest(req *services.TicketSaleRequest) ValidationErrors {
	errs := ValidateStruct(req)

	if req.TripID.IsZero() {
		errs = append(errs, ValidationError{Field: "trip_id", Tag: "required", Message: "trip_id is required"})
	}
	if req.CustomerID.IsZero() {
		errs = append(errs, ValidationError{Field: "customer_id", Tag: "required", Message: "customer_id is required"})
	}

	return errs
}

func ValidateParcelSaleRequest(req *services.ParcelSaleRequest) ValidationErrors {
	errs := ValidateStruct(req)

	if req.TripID.IsZero() {
		errs = append(errs, ValidationError{Field: "trip_id", Tag: "required", Message: "trip_id is required"})
	}
	if req.CustomerID.IsZero() {
		errs = append(errs, ValidationError{Field: "customer_id", Tag: "required", Message: "customer_id is required"})
	}

	// Cross-field rules per modality.
	switch req.Modality {
	case models.ParcelPayAtOrigin:
		if req.Method == "" {
			errs = append(errs, ValidationError{Field: "method", Tag: "required", Message: "method is required when paying at origin"})
		}
	case models.ParcelPaySplit:
		if req.OriginAmount <= 0 || req.OriginAmount >= req.TotalAmount {
			errs = append(errs, ValidationError{Field: "origin_amount", Tag: "min", Message: "origin_amount must be between 0 and total_amount"})
		}
	}

	return errs
}
