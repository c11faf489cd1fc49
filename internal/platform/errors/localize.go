package errors

import (
	stderrors "errors"

	"github.com/louisbranch/opsroom/internal/platform/errors/i18n"
)

// Localize renders the user-facing message for err in the requested locale.
func Localize(err error, locale string) string {
	if err == nil {
		return ""
	}
	code := CodeOf(err)
	var metadata map[string]string
	var domainErr *Error
	if As(err, &domainErr) {
		metadata = domainErr.Metadata
	}
	return i18n.GetCatalog(locale).Format(string(code), metadata)
}

// As is errors.As re-exported so callers importing this package under the
// errors name keep access to the standard helper.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
