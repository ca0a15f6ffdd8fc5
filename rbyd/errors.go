package rbyd

import "errors"

var (
	ErrBadAddr           = errors.New("unparseable block address")
	ErrNoRoots           = errors.New("at least one root block address is required")
	ErrBlockSizeInvalid  = errors.New("block size must be positive")
	ErrDeviceSizeUnknown = errors.New("the device does not report a size, an explicit block size is required")
)
