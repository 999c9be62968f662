package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xssnick/tonutils-go/address"

	"referral-rewards-backend/internal/common/errors"
)

const walletHeader = "X-Wallet"

// WalletKey is the context key carrying the caller's normalized address.
const WalletKey = "wallet"

// NormalizeWallet parses a TON address in raw or user-friendly form and
// returns its canonical user-friendly representation. All repository keys use
// this form so the same wallet never splits into two ledgers.
func NormalizeWallet(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.NewValidationError("wallet", "address is empty")
	}

	var (
		addr *address.Address
		err  error
	)
	if strings.Contains(trimmed, ":") {
		addr, err = address.ParseRawAddr(trimmed)
	} else {
		addr, err = address.ParseAddr(trimmed)
	}
	if err != nil {
		return "", errors.NewValidationError("wallet", "not a valid TON address").WithDetail("input", trimmed)
	}

	return addr.String(), nil
}

// Wallet extracts and normalizes the caller's wallet from the X-Wallet header.
func Wallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		normalized, err := NormalizeWallet(c.GetHeader(walletHeader))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(WalletKey, normalized)
		c.Next()
	}
}

// WalletFrom reads the normalized wallet set by the Wallet middleware.
func WalletFrom(c *gin.Context) string {
	if wallet, exists := c.Get(WalletKey); exists {
		if addr, ok := wallet.(string); ok {
			return addr
		}
	}
	return ""
}
