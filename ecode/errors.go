package ecode

import "fmt"

const (
	emptyMsg    = "empty"
	requiredMsg = "required"
	invalidMsg  = "invalid"
	failedMsg   = "failed"
	existMsg    = "already exists"
	notExistMsg = "does not exist"
	expiredMsg  = "expired"
)

// withKey prefixes msg with the first key, if any
func withKey(msg string, k ...string) string {
	if len(k) > 0 && k[0] != "" {
		return fmt.Sprintf("%s %s", k[0], msg)
	}
	return msg
}

// FieldIsEmpty returns field empty message
func FieldIsEmpty(k ...string) string { return withKey(emptyMsg, k...) }

// FieldIsRequired returns field required message
func FieldIsRequired(k ...string) string { return withKey(requiredMsg, k...) }

// FieldIsInvalid returns field invalid message
func FieldIsInvalid(k ...string) string { return withKey(invalidMsg, k...) }

// Failed returns failed message
func Failed(k ...string) string { return withKey(failedMsg, k...) }

// AlreadyExist returns already exist message
func AlreadyExist(k ...string) string { return withKey(existMsg, k...) }

// NotExist returns not exist message
func NotExist(k ...string) string { return withKey(notExistMsg, k...) }

// Expired returns expired message
func Expired(k ...string) string { return withKey(expiredMsg, k...) }
