package appointment

import (
	"fmt"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
)

func errInvalidStatus(s string) error {
	return fmt.Errorf("status %q: %w", s, httperr.ErrBusiness(httperr.CodeInvalidTransition))
}
