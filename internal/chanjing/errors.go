package chanjing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient network failure")
	ErrAuth          = errors.New("authentication rejected")
	ErrBusiness      = errors.New("request rejected")
	ErrBilling       = errors.New("insufficient balance")
	ErrRemoteState   = errors.New("remote resource unavailable")
	ErrTimeout       = errors.New("timeout")
)

// Platform URLs surfaced in user-facing remediation messages.
const (
	keysURL     = "https://www.chanjing.cc/platform/api_keys"
	rechargeURL = "https://www.chanjing.cc"
)

// Wrap builds an error message that includes operation context while
// tagging it with the provided marker for later classification. The
// marker should be one of the exported sentinel errors above.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "request failure"
	}
	return strings.Join(parts, ": ")
}

// billingKeywords are the phrases the platform embeds in status messages
// when a job fails because the account balance cannot cover it. Billing is
// checked after job creation, so these arrive asynchronously through the
// polled detail message rather than as a synchronous rejection.
var billingKeywords = []string{
	"扣费失败",
	"余额不足",
	"蝉豆不足",
	"蝉豆余额",
	"欠费",
}

// CheckBillingMessage inspects a free-text status message for billing
// failure indicators. It returns a billing error with recharge guidance
// when one matches, nil otherwise.
func CheckBillingMessage(operation, msg string) error {
	if strings.TrimSpace(msg) == "" {
		return nil
	}
	for _, keyword := range billingKeywords {
		if strings.Contains(msg, keyword) {
			message := fmt.Sprintf("account balance too low; top up at %s (service reported: %s)", rechargeURL, msg)
			return Wrap(ErrBilling, operation, message, nil)
		}
	}
	return nil
}
