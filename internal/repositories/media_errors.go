package repositories

import "errors"

// ErrMediaNotFound is returned when a media document does not exist.
var ErrMediaNotFound = errors.New("repositories: media not found")
