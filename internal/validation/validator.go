package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/fieldlink/internal/links"
)

// New returns a configured validator with the link field validators and
// struct-level checks registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// registration only fails for empty tags or nil funcs
	_ = v.RegisterValidation("link_policy", func(fl validatorv10.FieldLevel) bool {
		_, err := links.ParsePolicy(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("lifecycle_stage", func(fl validatorv10.FieldLevel) bool {
		_, ok := links.ParseStage(fl.Field().String())
		return ok
	})

	v.RegisterStructValidation(issueStructValidation, IssueLinkRequest{})
	v.RegisterStructValidation(regenerateStructValidation, RegenerateLinkRequest{})
	return v
}

// a secondary party is only meaningful when a delivery contact is embedded
func issueStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(IssueLinkRequest)
	if req.SecondaryContact != "" && req.DeliveryContact == "" {
		sl.ReportError(req.SecondaryContact, "secondary_contact", "SecondaryContact", "requires_delivery_contact", "")
	}
}

func regenerateStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(RegenerateLinkRequest)
	if req.SecondaryContact != "" && req.DeliveryContact == "" {
		sl.ReportError(req.SecondaryContact, "secondary_contact", "SecondaryContact", "requires_delivery_contact", "")
	}
}
