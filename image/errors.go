package image

import "github.com/pkg/errors"

// ErrNoImage is the error returned from Reader.Read when the anchor slot
// carries the plain-storage signature. There is nothing to resume; callers
// proceed with a normal cold start.
var ErrNoImage error = errors.New("storage area holds no suspend image")

// ErrIncompatible is the error returned when a candidate image header does
// not match the live machine
var ErrIncompatible error = errors.New("suspend image is incompatible with this machine")

// ErrNoSpace is the error returned from Writer.Write when the suspend-target
// area runs out of free slots
var ErrNoSpace error = errors.New("not enough free slots on the suspend-target area")

// ErrBadSignature is the error returned when the anchor slot carries neither
// the plain-storage nor the image-present signature
var ErrBadSignature error = errors.New("unrecognized storage area signature")
