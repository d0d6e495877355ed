package mutation

import "errors"

var errNothingToUpdate = errors.New("nothing to update")
