package validation

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"unibox/internal/constants"
	"unibox/internal/errors"
	"unibox/internal/models"
)

// invalid builds the ErrCodeInvalidInput error every check here returns.
func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf(format, args...))
}

// identifier enforces the shape rules shared by provider-supplied IDs:
// nonempty, bounded, and free of control characters.
func identifier(value, what string, maxLen int) error {
	switch {
	case value == "":
		return invalid("%s cannot be empty", what)
	case len(value) > maxLen:
		return invalid("%s too long (max %d characters)", what, maxLen)
	case containsControlChars(value):
		return invalid("%s contains invalid characters", what)
	}
	return nil
}

// ValidateChannelName validates a channel slug such as "whatsapp" or "gmail".
func ValidateChannelName(name string) error {
	badRune := func(r rune) bool {
		return (r < 'a' || r > 'z') && !unicode.IsDigit(r) && r != '_' && r != '-'
	}

	switch {
	case name == "":
		return invalid("channel name cannot be empty")
	case len(name) > constants.MaxChannelNameLength:
		return invalid("channel name too long (max %d characters)", constants.MaxChannelNameLength)
	case strings.ContainsFunc(name, badRune):
		return invalid("channel name must contain only lowercase letters, numbers, underscores, and dashes")
	}
	return nil
}

// ValidateExternalID validates a provider conversation or thread identifier.
func ValidateExternalID(externalID string) error {
	return identifier(externalID, "external conversation ID", constants.MaxExternalIDLength)
}

// ValidateExternalMessageID validates a provider message identifier.
func ValidateExternalMessageID(messageID string) error {
	return identifier(messageID, "external message ID", constants.MaxExternalIDLength)
}

// ValidateParticipantIdentifier validates the stable participant address.
// Channels disagree on shape (E.164, email, handle), so only size and
// control characters are checked here.
func ValidateParticipantIdentifier(id string) error {
	return identifier(id, "participant identifier", constants.MaxSenderLength)
}

// ValidateSenderIdentifier validates the sender address on a message.
func ValidateSenderIdentifier(id string) error {
	return identifier(id, "sender identifier", constants.MaxSenderLength)
}

// ValidateDirection validates the message direction enumeration.
func ValidateDirection(direction models.Direction) error {
	switch {
	case direction == "":
		return invalid("direction cannot be empty")
	case !direction.IsValid():
		return invalid("direction must be %q or %q", models.DirectionIncoming, models.DirectionOutgoing)
	}
	return nil
}

// ValidateContent validates the message body. Empty content is allowed
// because media and system messages may carry none.
func ValidateContent(content string) error {
	if len(content) > constants.DefaultMaxContentLength {
		return invalid("content too long (max %d bytes)", constants.DefaultMaxContentLength)
	}
	return nil
}

// ValidateMessageType validates the free-form type tag.
func ValidateMessageType(messageType string) error {
	switch {
	case len(messageType) > constants.MaxMessageTypeLength:
		return invalid("message type too long (max %d characters)", constants.MaxMessageTypeLength)
	case strings.ContainsAny(messageType, "\x00\n\r"):
		return invalid("message type contains invalid characters")
	}
	return nil
}

// ValidateCategory validates a conversation category against the closed
// enumeration. Rejected values leave the stored category untouched because
// this runs before any mutation.
func ValidateCategory(value string) error {
	if !models.Category(value).IsValid() {
		return errors.NewInvalidCategoryError(value)
	}
	return nil
}

// ValidateMessageEvent validates the canonical event shape adapters submit.
func ValidateMessageEvent(event *models.MessageEvent) error {
	if event == nil {
		return invalid("event cannot be nil")
	}

	if err := ValidateChannelName(event.ChannelName); err != nil {
		return err
	}
	if err := ValidateExternalID(event.ExternalConversationID); err != nil {
		return err
	}
	if err := ValidateParticipantIdentifier(event.ParticipantIdentifier); err != nil {
		return err
	}
	if err := ValidateDirection(event.Direction); err != nil {
		return err
	}
	if err := ValidateContent(event.Content); err != nil {
		return err
	}
	if err := ValidateMessageType(event.MessageType); err != nil {
		return err
	}
	if err := ValidateSenderIdentifier(event.SenderIdentifier); err != nil {
		return err
	}
	if event.ExternalMessageID != nil {
		if err := ValidateExternalMessageID(*event.ExternalMessageID); err != nil {
			return err
		}
	}
	if event.ParticipantName != nil {
		if err := ValidateStringLength(*event.ParticipantName, "participant name", 0, constants.MaxSenderLength); err != nil {
			return err
		}
	}
	if event.SenderName != nil {
		if err := ValidateStringLength(*event.SenderName, "sender name", 0, constants.MaxSenderLength); err != nil {
			return err
		}
	}
	if event.Timestamp.IsZero() {
		return invalid("timestamp cannot be empty")
	}

	return nil
}

// ValidateHTTPRequestSize rejects requests whose declared length exceeds
// the given budget.
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	switch {
	case r.ContentLength < 0:
		return invalid("invalid content length")
	case r.ContentLength > maxSizeBytes:
		return invalid("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes)
	}
	return nil
}

// ValidateStringLength validates a string against inclusive length bounds.
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	switch {
	case len(value) < minLength:
		return invalid("%s too short (min %d characters)", fieldName, minLength)
	case len(value) > maxLength:
		return invalid("%s too long (max %d characters)", fieldName, maxLength)
	}
	return nil
}

func containsControlChars(value string) bool {
	return strings.ContainsAny(value, "\x00\n\r\t")
}
