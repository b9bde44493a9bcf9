package interfaces

import "github.com/m-mizutani/goerr/v2"

// ErrNotFound is returned (wrapped) by repositories when a keyed lookup has no row
var ErrNotFound = goerr.New("not found")
