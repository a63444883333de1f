package rpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-nft-market/internal/domain"
)

func TestCodes_CoverEveryKindUniquely(t *testing.T) {
	seen := map[int]error{}
	for _, kind := range domain.ErrorKinds {
		code := CodeForKind(kind)
		require.NotEqual(t, CodeInternalError, code, "kind %v has no code", kind)
		_, dup := seen[code]
		require.False(t, dup, "code %d reused", code)
		seen[code] = kind
		assert.Equal(t, kind, KindForCode(code))
	}
	assert.Equal(t, CodeInternalError, CodeForKind(errors.New("other")))
	assert.Nil(t, KindForCode(CodeInternalError))
}

func TestError_UnwrapsToKind(t *testing.T) {
	raw := []byte(`{"code":-32010,"message":"buyItem: price not met","data":{"kind":"price not met","class":"precondition"}}`)
	var e Error
	require.NoError(t, json.Unmarshal(raw, &e))

	var err error = &e
	assert.ErrorIs(t, err, domain.ErrPriceNotMet)
	assert.NotErrorIs(t, err, domain.ErrNotListed)
	assert.Equal(t, "precondition", e.Data.Class)
}

func TestResponse_NullIDWhenAbsent(t *testing.T) {
	resp := NewErrorResponse(nil, &Error{Code: CodeParseError, Message: "parse error"})
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`, string(raw))

	ok, err := NewResponse(json.RawMessage(`"abc"`), MintResult{RecordID: 3})
	require.NoError(t, err)
	raw, err = json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"abc","result":{"recordId":3}}`, string(raw))
}
