package apperrors

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Structured Errors", func() {
	Describe("AppError", func() {
		Context("basic error creation", func() {
			It("should create error with correct properties", func() {
				err := New(KindValidation, "test message")

				Expect(err.Kind).To(Equal(KindValidation))
				Expect(err.Message).To(Equal("test message"))
				Expect(err.Details).To(BeEmpty())
				Expect(err.Cause).To(BeNil())
			})

			It("should implement error interface correctly", func() {
				err := New(KindValidation, "test message")
				Expect(err.Error()).To(Equal("validation: test message"))
			})

			It("should include details in error string when present", func() {
				err := New(KindValidation, "test message").WithDetails("extra info")
				Expect(err.Error()).To(Equal("validation: test message (extra info)"))
			})
		})

		Context("error wrapping", func() {
			It("should wrap underlying error", func() {
				originalErr := errors.New("original error")
				wrappedErr := Wrap(originalErr, KindIO, "operation failed")

				Expect(wrappedErr.Kind).To(Equal(KindIO))
				Expect(wrappedErr.Message).To(Equal("operation failed"))
				Expect(wrappedErr.Cause).To(Equal(originalErr))
				Expect(wrappedErr.Unwrap()).To(Equal(originalErr))
			})

			It("should format wrapped error with arguments", func() {
				originalErr := errors.New("connection refused")
				wrappedErr := Wrapf(originalErr, KindIO, "failed to connect to %s:%d", "localhost", 1883)

				Expect(wrappedErr.Message).To(Equal("failed to connect to localhost:1883"))
				Expect(wrappedErr.Cause).To(Equal(originalErr))
			})
		})

		Context("adding details", func() {
			It("should add details to existing error", func() {
				err := New(KindNotFound, "device not found")
				detailedErr := err.WithDetails("dev_ui=abc123")

				Expect(detailedErr.Details).To(Equal("dev_ui=abc123"))
				Expect(detailedErr).To(BeIdenticalTo(err))
			})

			It("should add formatted details", func() {
				err := New(KindNotFound, "device not found")
				detailedErr := err.WithDetailsf("dev_ui=%s, attempt %d", "abc123", 3)

				Expect(detailedErr.Details).To(Equal("dev_ui=abc123, attempt 3"))
			})
		})
	})

	Describe("Predefined Error Constructors", func() {
		It("should create validation error", func() {
			err := NewValidationError("invalid input")
			Expect(err.Kind).To(Equal(KindValidation))
			Expect(err.Message).To(Equal("invalid input"))
		})

		It("should create integrity error", func() {
			originalErr := errors.New("duplicate key")
			err := NewIntegrityError("ds reading insert", originalErr)

			Expect(err.Kind).To(Equal(KindIntegrity))
			Expect(err.Message).To(ContainSubstring("ds reading insert"))
			Expect(err.Cause).To(Equal(originalErr))
		})

		It("should create not found error", func() {
			err := NewNotFoundError("device")
			Expect(err.Kind).To(Equal(KindNotFound))
			Expect(err.Message).To(Equal("device not found"))
		})

		It("should create restoration batch overflow error", func() {
			err := NewRestorationBatchOverflowError(42, 9)
			Expect(err.Kind).To(Equal(KindRestorationBatchOverflow))
			Expect(err.Message).To(ContainSubstring("datafeed 42"))
			Expect(err.Message).To(ContainSubstring("9 doublings"))
		})

		It("should create unknown aggregation error", func() {
			err := NewUnknownAggregationError("MEDIAN")
			Expect(err.Kind).To(Equal(KindUnknownAggregation))
			Expect(err.Message).To(ContainSubstring("MEDIAN"))
		})
	})

	Describe("Error Kind Checking", func() {
		It("should correctly identify error kinds", func() {
			validationErr := NewValidationError("test")
			notFoundErr := NewNotFoundError("test")

			Expect(IsType(validationErr, KindValidation)).To(BeTrue())
			Expect(IsType(validationErr, KindNotFound)).To(BeFalse())
			Expect(IsType(notFoundErr, KindNotFound)).To(BeTrue())
		})

		It("should handle non-AppError types", func() {
			regularErr := errors.New("regular error")
			Expect(IsType(regularErr, KindValidation)).To(BeFalse())
			Expect(GetType(regularErr)).To(Equal(KindUnknownAggregation))
		})
	})

	Describe("Logging Fields", func() {
		It("should generate structured logging fields", func() {
			originalErr := errors.New("connection failed")
			appErr := Wrapf(originalErr, KindIO, "publish failed").
				WithDetails("topic: procdata/1/Device/5")

			fields := LogFields(appErr)

			Expect(fields).To(HaveKey("error"))
			Expect(fields).To(HaveKey("error_kind"))
			Expect(fields).To(HaveKey("error_details"))
			Expect(fields).To(HaveKey("underlying_error"))
			Expect(fields["error_kind"]).To(Equal("io"))
			Expect(fields["error_details"]).To(Equal("topic: procdata/1/Device/5"))
			Expect(fields["underlying_error"]).To(Equal("connection failed"))
		})

		It("should handle simple AppError without details", func() {
			err := NewValidationError("invalid input")
			fields := LogFields(err)

			Expect(fields).To(HaveKey("error"))
			Expect(fields).To(HaveKey("error_kind"))
			Expect(fields).NotTo(HaveKey("error_details"))
			Expect(fields).NotTo(HaveKey("underlying_error"))
		})

		It("should handle regular errors", func() {
			err := errors.New("regular error")
			fields := LogFields(err)

			Expect(fields).To(HaveKey("error"))
			Expect(fields).NotTo(HaveKey("error_kind"))
		})
	})

	Describe("Error Chaining", func() {
		It("should handle empty error list", func() {
			Expect(Chain()).To(BeNil())
		})

		It("should handle single error", func() {
			originalErr := errors.New("single error")
			Expect(Chain(originalErr)).To(Equal(originalErr))
		})

		It("should filter nil errors", func() {
			err1 := errors.New("error 1")
			err2 := errors.New("error 2")

			err := Chain(err1, nil, err2, nil)

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("error 1"))
			Expect(err.Error()).To(ContainSubstring("error 2"))
		})

		It("should chain multiple errors", func() {
			err1 := errors.New("first error")
			err2 := errors.New("second error")
			err3 := errors.New("third error")

			chainedErr := Chain(err1, err2, err3)

			Expect(chainedErr).To(HaveOccurred())
			msg := chainedErr.Error()
			Expect(msg).To(ContainSubstring("first error"))
			Expect(msg).To(ContainSubstring("second error"))
			Expect(msg).To(ContainSubstring("third error"))
			Expect(msg).To(ContainSubstring(" -> "))
		})

		It("should return nil when all errors are nil", func() {
			Expect(Chain(nil, nil, nil)).To(BeNil())
		})
	})
})
