package qerr_test

import (
	"errors"

	"quiccore/internal/qerr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Error", func() {
	It("renders Kind and message", func() {
		err := qerr.New(qerr.KindMalformed, "bad tag")
		Expect(err.Error()).To(Equal("Malformed: bad tag"))
	})

	It("matches the sentinel of the same Kind via errors.Is, regardless of message", func() {
		err := qerr.New(qerr.KindBufferTooSmall, "a more specific message")
		Expect(errors.Is(err, qerr.ErrBufferTooSmall)).To(BeTrue())
		Expect(errors.Is(err, qerr.ErrMalformed)).To(BeFalse())
	})

	It("falls back to the Kind's name when no message is set", func() {
		err := &qerr.Error{Kind: qerr.KindTruncated}
		Expect(err.Error()).To(Equal("Truncated"))
	})
})
