package evidence

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var contentHashPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// validate is shared; validator.Validate caches struct metadata and is safe
// for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("contenthash", func(fl validator.FieldLevel) bool {
		return contentHashPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// validateSubmission checks every category in a fixed order and returns the
// first problem found.
func validateSubmission(sub Submission) error {
	candidateID := strings.TrimSpace(sub.CandidateID)
	if candidateID == "" {
		return &ValidationError{Err: ErrMissingField, Category: CategoryCandidate, Field: "candidate_id"}
	}

	categories := []struct {
		category Category
		value    any
		missing  bool
	}{
		{CategoryArtifact, sub.Artifact, sub.Artifact == nil},
		{CategoryTests, sub.Tests, sub.Tests == nil},
		{CategoryScans, sub.Scans, sub.Scans == nil},
		{CategoryRollback, sub.Rollback, sub.Rollback == nil},
	}
	for _, c := range categories {
		if c.missing {
			return &ValidationError{Err: ErrMissingField, CandidateID: candidateID, Category: c.category}
		}
	}
	for _, c := range categories {
		if err := validate.Struct(c.value); err != nil {
			return translate(err, candidateID, c.category)
		}
	}

	if sub.Tests.Executed() <= 0 {
		return &ValidationError{
			Err:         ErrMalformedField,
			CandidateID: candidateID,
			Category:    CategoryTests,
			Detail:      "no executed tests (passed + failed = 0)",
		}
	}
	return nil
}

func translate(err error, candidateID string, category Category) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Err: ErrMalformedField, CandidateID: candidateID, Category: category, Detail: err.Error()}
	}

	fe := fieldErrs[0]
	kind := ErrMalformedField
	if fe.Tag() == "required" || fe.Tag() == "notblank" {
		kind = ErrMissingField
	}
	detail := ""
	if kind == ErrMalformedField {
		detail = fmt.Sprintf("failed %q check", fe.Tag())
		if p := fe.Param(); p != "" {
			detail = fmt.Sprintf("failed %q check (%s)", fe.Tag(), p)
		}
	}
	return &ValidationError{
		Err:         kind,
		CandidateID: candidateID,
		Category:    category,
		Field:       fe.Field(),
		Detail:      detail,
	}
}
