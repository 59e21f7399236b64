// Package pagination encodes DynamoDB last-evaluated keys as opaque,
// URL-safe continuation tokens. The codec treats the key as an attribute
// bag and assumes nothing about attribute names, so differently-shaped
// queries share one token format.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrInvalidToken indicates a continuation token that is not well-formed.
var ErrInvalidToken = errors.New("invalid pagination token")

// tokenAttr is the self-describing wire form of one key attribute. Exactly
// one field is set, mirroring the DynamoDB scalar type discriminators.
type tokenAttr struct {
	S *string `json:"s,omitempty"`
	N *string `json:"n,omitempty"`
}

// EncodeToken serializes a last-evaluated key into a continuation token.
// An empty key yields "", meaning no further pages. Only string and numeric
// scalars are supported, matching what a key can contain.
func EncodeToken(lastKey map[string]types.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}

	bag := make(map[string]tokenAttr, len(lastKey))
	for name, attr := range lastKey {
		switch v := attr.(type) {
		case *types.AttributeValueMemberS:
			value := v.Value
			bag[name] = tokenAttr{S: &value}
		case *types.AttributeValueMemberN:
			value := v.Value
			bag[name] = tokenAttr{N: &value}
		default:
			return "", fmt.Errorf("%w: attribute %q has non-scalar type %T", ErrInvalidToken, name, attr)
		}
	}

	payload, err := json.Marshal(bag)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeToken parses a continuation token back into an exclusive start
// key. A blank token means "first page" and decodes to nil; anything
// malformed fails with ErrInvalidToken.
func DecodeToken(token string) (map[string]types.AttributeValue, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: decode failed: %w", ErrInvalidToken, err)
	}

	var bag map[string]tokenAttr
	if err := json.Unmarshal(payload, &bag); err != nil {
		return nil, fmt.Errorf("%w: unmarshal failed: %w", ErrInvalidToken, err)
	}
	if len(bag) == 0 {
		return nil, fmt.Errorf("%w: empty cursor", ErrInvalidToken)
	}

	key := make(map[string]types.AttributeValue, len(bag))
	for name, attr := range bag {
		switch {
		case attr.S != nil && attr.N == nil:
			key[name] = &types.AttributeValueMemberS{Value: *attr.S}
		case attr.N != nil && attr.S == nil:
			key[name] = &types.AttributeValueMemberN{Value: *attr.N}
		default:
			return nil, fmt.Errorf("%w: attribute %q must carry exactly one scalar value", ErrInvalidToken, name)
		}
	}

	return key, nil
}
