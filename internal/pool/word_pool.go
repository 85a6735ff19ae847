package pool

import "sync"

// MaxPooledWords bounds the buffers kept by the word pool; larger buffers are left to the GC.
const MaxPooledWords = 1024

var wordPool = sync.Pool{
	New: func() any {
		buf := make([]uint32, 0, MaxPooledWords)
		return &buf
	},
}

// GetWords returns a zero-length word buffer with capacity for at least n words.
func GetWords(n int) *[]uint32 {
	bufp, _ := wordPool.Get().(*[]uint32)
	if cap(*bufp) < n {
		buf := make([]uint32, 0, n)
		return &buf
	}
	*bufp = (*bufp)[:0]

	return bufp
}

// PutWords returns a buffer obtained from GetWords.
func PutWords(bufp *[]uint32) {
	if bufp == nil || cap(*bufp) > MaxPooledWords {
		return
	}
	wordPool.Put(bufp)
}
