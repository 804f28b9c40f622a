package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNamespace_AcceptsWellFormedNamespace(t *testing.T) {
	assert.NoError(t, ValidateNamespace("sgd1"))
	assert.NoError(t, ValidateNamespace("sgd42"))
	assert.NoError(t, ValidateNamespace("sgd0"))
}

func TestValidateNamespace_RejectsMissingPrefix(t *testing.T) {
	assert.Error(t, ValidateNamespace("42"))
}

func TestValidateNamespace_RejectsNonNumericSuffix(t *testing.T) {
	assert.Error(t, ValidateNamespace("sgdabc"))
}

func TestValidateNamespace_RejectsEmptyString(t *testing.T) {
	assert.Error(t, ValidateNamespace(""))
}

func TestValidateNamespace_RejectsTrailingGarbage(t *testing.T) {
	assert.Error(t, ValidateNamespace("sgd1;DROP TABLE users"))
}

func TestValidateNamespace_RejectsUppercase(t *testing.T) {
	assert.Error(t, ValidateNamespace("SGD1"))
}
