package postgres

import (
	stdErrors "errors"
	"strconv"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
