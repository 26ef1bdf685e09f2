package permissions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/platinummonkey/groupaccess/pkg/cache"
	"github.com/platinummonkey/groupaccess/pkg/group"
)

// adminSentinel replaces the permission list of admin items in the hash input
const adminSentinel = "is-admin"

// HashGenerator turns an account's calculated permissions into a stable hash
type HashGenerator struct {
	calculation Calculation
	salt        string
	memo        cache.Backend
}

// NewHashGenerator creates a hash generator. memo caches hashes per account and
// is invalidated through the tags of the calculated permissions.
func NewHashGenerator(calculation Calculation, salt string, memo cache.Backend) *HashGenerator {
	return &HashGenerator{calculation: calculation, salt: salt, memo: memo}
}

// GenerateHash returns the hex encoded hash of the account's permissions
func (h *HashGenerator) GenerateHash(ctx context.Context, account group.Account) (string, error) {
	key := "group_permissions_hash:" + strconv.FormatInt(account.ID, 10) + ":" + account.RolesKey()
	if h.memo != nil {
		data, err := h.memo.Get(ctx, key)
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			return "", fmt.Errorf("failed to read permission hash: %w", err)
		}
	}

	perms, err := h.calculation.CalculateFullPermissions(ctx, account)
	if err != nil {
		return "", err
	}

	hash, err := h.hash(perms)
	if err != nil {
		return "", err
	}

	if h.memo != nil {
		if err := h.memo.Set(ctx, key, []byte(hash), perms.CacheMetadata()); err != nil {
			return "", fmt.Errorf("failed to store permission hash: %w", err)
		}
	}
	return hash, nil
}

func (h *HashGenerator) hash(perms *CalculatedPermissions) (string, error) {
	// encoding/json writes map keys in sorted order
	sorted := make(map[group.Scope]map[string]interface{})
	for _, item := range perms.Items() {
		if sorted[item.Scope] == nil {
			sorted[item.Scope] = make(map[string]interface{})
		}
		if item.Admin {
			sorted[item.Scope][item.Identifier] = adminSentinel
		} else {
			sorted[item.Scope][item.Identifier] = item.Permissions
		}
	}

	data, err := json.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("failed to serialize permissions: %w", err)
	}

	sum := sha256.Sum256(append([]byte(h.salt), data...))
	return hex.EncodeToString(sum[:]), nil
}
