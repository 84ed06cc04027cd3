package bloomfilter

import "errors"

var errCorruptSnapshot = errors.New("corrupt bloom filter snapshot")
