package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "sk_l***", RedactSecret("sk_live_abc123xyz"))
	assert.Equal(t, "***", RedactSecret("key"))
}

func TestRedactValueBySuffix(t *testing.T) {
	// Secret-bearing field names are masked regardless of value shape.
	assert.Equal(t, "sk_t***", redactValue("stripe_secret_key", "sk_test_1234567890"))
	assert.Equal(t, "Bear***", redactValue("authorization", "Bearer abc"))

	// Email-bearing field names use the email mask.
	assert.Equal(t, "al***@x.org", redactValue("recipient_email", "alice@x.org"))

	// Generic fields only have embedded emails masked.
	assert.Equal(t, "sent to bo***@x.org ok", redactValue("msg", "sent to bob@x.org ok"))
}
