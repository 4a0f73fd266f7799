package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatorDomainTags(t *testing.T) {
	v := NewValidator()

	for _, ci := range []string{"12345", "1234567", "1234567-1A", "9876543210"} {
		assert.NoError(t, v.Var(ci, "ci"), ci)
	}
	for _, ci := range []string{"1234", "12345678901", "1234567-", "abc1234", "1234567-ABC"} {
		assert.Error(t, v.Var(ci, "ci"), ci)
	}

	for _, phone := range []string{"71234567", "60000000"} {
		assert.NoError(t, v.Var(phone, "phone"), phone)
	}
	for _, phone := range []string{"51234567", "7123456", "712345678", "7123456a"} {
		assert.Error(t, v.Var(phone, "phone"), phone)
	}
}
