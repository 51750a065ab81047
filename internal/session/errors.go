package session

import "errors"

var errMissingAccount = errors.New("session: account provider not configured")
