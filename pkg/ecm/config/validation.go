package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/tendant/simple-ecm/pkg/ecm"
)

// validate is the singleton validator instance
var validate = validator.New()

// Validate checks struct tags first, then the rules that span fields.
func (c *ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return c.validateCustomRules()
}

func (c *ServerConfig) validateCustomRules() error {
	if !slices.Contains(c.Languages.Supported, c.Languages.Default) {
		return fmt.Errorf("languages.default: %q is not a supported language", c.Languages.Default)
	}

	for name := range c.Languages.TypeRoots {
		if _, err := ecm.ParseContentType(name); err != nil {
			return fmt.Errorf("languages.type_roots: %w", err)
		}
	}

	if c.Blob.Type == "s3" && c.Blob.S3.Bucket == "" {
		return errors.New("blob.s3.bucket is required when using s3")
	}
	if c.Blob.S3.SSEKMSKeyID != "" && c.Blob.S3.SSEAlgorithm != "aws:kms" {
		return errors.New("blob.s3.sse_kms_key_id requires sse_algorithm aws:kms")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
