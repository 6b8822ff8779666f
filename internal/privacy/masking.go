// Package privacy masks customer identifiers before they reach logs.
package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits.
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if rest, ok := strings.CutPrefix(phone, "+"); ok {
		if len(rest) > 4 {
			return "+" + maskString(rest, 4)
		}
		return "+" + strings.Repeat("*", len(rest))
	}
	return maskString(phone, 4)
}

// MaskEmail masks an email address keeping the first character of the local
// part and the full domain.
// Example: "john.doe@example.com" -> "j*******@example.com"
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	switch {
	case at <= 0:
		return maskString(email, 0)
	case at == 1:
		return "*" + email[at:]
	default:
		return email[:1] + strings.Repeat("*", at-1) + email[at:]
	}
}

// MaskHandle masks a social handle keeping a leading @ and the last 4
// characters.
// Example: "@customer_42" -> "@*******r_42"
func MaskHandle(handle string) string {
	if rest, ok := strings.CutPrefix(handle, "@"); ok {
		return "@" + maskString(rest, 4)
	}
	return maskString(handle, 4)
}

// MaskIdentifier masks a participant or sender identifier using the shape it
// appears to have: social handle, email address, E.164 phone, or an opaque
// string.
func MaskIdentifier(identifier string) string {
	switch {
	case identifier == "":
		return ""
	case strings.HasPrefix(identifier, "@"):
		return MaskHandle(identifier)
	case strings.Contains(identifier, "@"):
		return MaskEmail(identifier)
	case strings.HasPrefix(identifier, "+"), len(identifier) >= 10 && isNumeric(identifier):
		return MaskPhoneNumber(identifier)
	default:
		return maskString(identifier, 4)
	}
}

// MaskExternalID masks a provider-assigned conversation or message ID while
// preserving the tail for debugging.
// Example: "conv_ABCDEF" -> "*******CDEF"
func MaskExternalID(externalID string) string {
	return maskString(externalID, 4)
}

// MaskMessageID masks an external message identifier showing the last 8
// characters.
func MaskMessageID(messageID string) string {
	return maskString(messageID, 8)
}

// maskString replaces all but the last keepLast characters with stars.
func maskString(s string, keepLast int) string {
	if keep := len(s) - keepLast; keep > 0 {
		return strings.Repeat("*", keep) + s[keep:]
	}
	return strings.Repeat("*", len(s))
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// fieldMaskers routes well-known logging field names to the masker for
// their shape.
var fieldMaskers = map[string]func(string) string{
	"participant_identifier":   MaskIdentifier,
	"sender_identifier":        MaskIdentifier,
	"participant":              MaskIdentifier,
	"sender":                   MaskIdentifier,
	"from":                     MaskIdentifier,
	"to":                       MaskIdentifier,
	"external_id":              MaskExternalID,
	"external_conversation_id": MaskExternalID,
	"conversation_external_id": MaskExternalID,
	"external_message_id":      MaskMessageID,
	"message_id":               MaskMessageID,
	"messageId":                MaskMessageID,
	"msg_id":                   MaskMessageID,
	"email":                    MaskEmail,
	"phone":                    MaskPhoneNumber,
	"phone_number":             MaskPhoneNumber,
}

// MaskSensitiveFields applies shape-appropriate masking to well-known
// logging fields. Unknown keys and non-string values pass through untouched.
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if mask, ok := fieldMaskers[k]; ok {
			if s, isString := v.(string); isString {
				masked[k] = mask(s)
				continue
			}
		}
		masked[k] = v
	}
	return masked
}
