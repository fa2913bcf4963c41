package filecodec_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/filecodec"
)

func TestValidateAcceptsWellFormedPayload(t *testing.T) {
	codec := filecodec.TreeCodec{}
	body := base64.StdEncoding.EncodeToString([]byte("encoded bits"))

	err := codec.Validate(json.RawMessage(`{"0":{"left":"a","right":"b"}}`), body)
	require.NoError(t, err)
}

func TestValidateRejectsEmptyTree(t *testing.T) {
	codec := filecodec.TreeCodec{}
	err := codec.Validate(nil, "aGk=")
	assert.ErrorIs(t, err, filecodec.ErrEmptyTree)
}

func TestValidateRejectsInvalidTreeJSON(t *testing.T) {
	codec := filecodec.TreeCodec{}
	err := codec.Validate(json.RawMessage(`{broken`), "aGk=")
	assert.Error(t, err)
}

func TestValidateRejectsEmptyBody(t *testing.T) {
	codec := filecodec.TreeCodec{}
	err := codec.Validate(json.RawMessage(`{}`), "")
	assert.ErrorIs(t, err, filecodec.ErrEmptyBody)
}

func TestValidateRejectsNonBase64Body(t *testing.T) {
	codec := filecodec.TreeCodec{}
	err := codec.Validate(json.RawMessage(`{}`), "!!! definitely not base64 !!!")
	assert.Error(t, err)
}
