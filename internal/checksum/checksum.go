// Пакет checksum — вычисление и проверка SHA-256 контрольных сумм
// содержимого документов. Дайджест фиксируется один раз при первой записи
// и хранится на записи документа; все последующие сравнения идут против
// зафиксированного значения, а не против текущего содержимого файла.
package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Digest вычисляет SHA-256 потока и возвращает hex-строку.
func Digest(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("ошибка вычисления контрольной суммы: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// DigestBytes вычисляет SHA-256 среза байт и возвращает hex-строку.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify сравнивает дайджест потока с ожидаемым значением.
func Verify(r io.Reader, expected string) (bool, error) {
	actual, err := Digest(r)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1, nil
}

// Reader — обёртка io.Reader с подсчётом SHA-256 и размера на лету.
// Позволяет одним проходом записать поток в хранилище и зафиксировать
// дайджест, как это делает streaming-запись на диск.
type Reader struct {
	r      io.Reader
	hasher hash.Hash
	size   int64
}

// NewReader создаёт подсчитывающий reader поверх r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, hasher: sha256.New()}
}

func (cr *Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hasher.Write(p[:n])
		cr.size += int64(n)
	}
	return n, err
}

// Sum возвращает hex-дайджест прочитанных байт.
func (cr *Reader) Sum() string {
	return hex.EncodeToString(cr.hasher.Sum(nil))
}

// Size возвращает количество прочитанных байт.
func (cr *Reader) Size() int64 {
	return cr.size
}
