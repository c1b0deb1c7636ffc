package slug

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Длина slug: 16 байт UUID в base64 без padding.
const encodedLen = 22

// ErrDecode возвращается для любого некорректного slug: неверная длина,
// символы вне URL-safe алфавита или значение, не являющееся канонической
// кодировкой 128-битного идентификатора.
var ErrDecode = errors.New("malformed slug")

// Strict-режим отклоняет неканонические хвостовые биты, поэтому каждый UUID
// имеет ровно одно slug-представление и наоборот.
var codec = base64.RawURLEncoding.Strict()

// Encode кодирует UUID в URL-safe slug для публичных идентификаторов.
func Encode(id uuid.UUID) string {
	return codec.EncodeToString(id[:])
}

// Decode восстанавливает UUID из slug. Причина ошибки не различается:
// наружу уходит только ErrDecode.
func Decode(s string) (uuid.UUID, error) {
	if len(s) != encodedLen {
		return uuid.Nil, fmt.Errorf("%w: unexpected length %d", ErrDecode, len(s))
	}

	raw, err := codec.DecodeString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return id, nil
}
