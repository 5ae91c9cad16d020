package model

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"coachhire-ai/internal/domain"
)

var validate = validator.New()

type intakeIDs struct {
	EnquiryID      string `validate:"required_without=InboundEmailID"`
	InboundEmailID string `validate:"required_without=EnquiryID"`
}

type enquiryIDs struct {
	EnquiryID string `validate:"required"`
}

type confirmationIDs struct {
	BookingID       string `validate:"required_without=CustomerQuoteID"`
	CustomerQuoteID string `validate:"required_without=BookingID"`
}

// ValidatePayload checks that the payload names the entity the flow runs against.
func ValidatePayload(name FlowName, p JobPayload) error {
	var target any
	switch name {
	case FlowEnquiryIntake:
		target = intakeIDs{EnquiryID: p.EnquiryID, InboundEmailID: p.InboundEmailID}
	case FlowBidEvaluation, FlowQuoteGeneration:
		target = enquiryIDs{EnquiryID: p.EnquiryID}
	case FlowJobConfirmation:
		target = confirmationIDs{BookingID: p.BookingID, CustomerQuoteID: p.CustomerQuoteID}
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownFlow, name)
	}
	return validateStruct(target, domain.ErrInvalidPayload)
}

// ValidateValue runs the struct tags of v and reports the first failure wrapped in kind.
func ValidateValue(v any, kind error) error { return validateStruct(v, kind) }

func validateStruct(v any, kind error) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if ves, ok := err.(validator.ValidationErrors); ok && len(ves) > 0 {
		parts := make([]string, 0, len(ves))
		for _, fe := range ves {
			parts = append(parts, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", kind, strings.Join(parts, ", "))
	}
	return fmt.Errorf("%w: %v", kind, err)
}
