// Package validation checks the identifiers that arrive in request paths and bodies:
// repository ids, file names and model version labels. The checks run before any
// lookup so malformed input is rejected with 400 instead of reaching the database.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	// MaxRepoIDLength bounds "<org>/<name>" repository ids
	MaxRepoIDLength = 256
	// MaxRFilenameLength bounds repository-relative file paths
	MaxRFilenameLength = 1024
)

// repoIDRegex accepts "name" or "org/name"; each segment starts with an alphanumeric.
var repoIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*(/[A-Za-z0-9][A-Za-z0-9._-]*)?$`)

// ValidateRepoID validates a repository id such as "meta-llama/Llama-3-8B"
func ValidateRepoID(repoID string) error {
	if repoID == "" {
		return fmt.Errorf("repo_id is required")
	}
	if len(repoID) > MaxRepoIDLength {
		return fmt.Errorf("repo_id exceeds %d characters", MaxRepoIDLength)
	}
	if !repoIDRegex.MatchString(repoID) {
		return fmt.Errorf("invalid repo_id: %q", repoID)
	}
	if strings.Contains(repoID, "..") {
		return fmt.Errorf("invalid repo_id: %q", repoID)
	}
	return nil
}

// ValidateRFilename validates a repository-relative file path
func ValidateRFilename(rfilename string) error {
	if rfilename == "" {
		return fmt.Errorf("rfilename is required")
	}
	if len(rfilename) > MaxRFilenameLength {
		return fmt.Errorf("rfilename exceeds %d characters", MaxRFilenameLength)
	}
	if strings.HasPrefix(rfilename, "/") || strings.ContainsRune(rfilename, 0) {
		return fmt.Errorf("invalid rfilename: %q", rfilename)
	}
	for _, seg := range strings.Split(rfilename, "/") {
		if seg == ".." {
			return fmt.Errorf("rfilename must not contain '..' segments")
		}
	}
	return nil
}

// RegisterValidators adds the custom tags used by request DTOs ("repoid")
func RegisterValidators(v *validator.Validate) error {
	return v.RegisterValidation("repoid", func(fl validator.FieldLevel) bool {
		return ValidateRepoID(fl.Field().String()) == nil
	})
}

// RegisterWithGin registers the custom tags on gin's default binding validator
func RegisterWithGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected gin validator engine %T", binding.Validator.Engine())
	}
	return RegisterValidators(v)
}
