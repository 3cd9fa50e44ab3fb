package scheduler_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"musky.app/forecast/internal/scheduler"
)

var _ = Describe("DailySchedule", func() {
	var detroit *time.Location

	BeforeEach(func() {
		var err error
		detroit, err = time.LoadLocation("America/Detroit")
		Expect(err).NotTo(HaveOccurred())
	})

	at := func(y int, m time.Month, d, h, min int) time.Time {
		return time.Date(y, m, d, h, min, 0, 0, detroit)
	}

	It("runs later the same day when the time has not passed", func() {
		s := scheduler.DailySchedule{Hour: 5, Location: detroit}
		Expect(s.Next(at(2026, 6, 10, 4, 59))).To(BeTemporally("==", at(2026, 6, 10, 5, 0)))
	})

	It("runs tomorrow when the time is now or past", func() {
		s := scheduler.DailySchedule{Hour: 5, Location: detroit}
		Expect(s.Next(at(2026, 6, 10, 5, 0))).To(BeTemporally("==", at(2026, 6, 11, 5, 0)))
		Expect(s.Next(at(2026, 6, 10, 23, 0))).To(BeTemporally("==", at(2026, 6, 11, 5, 0)))
	})

	It("keeps the wall-clock time across spring forward", func() {
		s := scheduler.DailySchedule{Hour: 5, Location: detroit}
		before := s.Next(at(2026, 3, 7, 4, 0))
		after := s.Next(before)

		Expect(after.In(detroit).Hour()).To(Equal(5))
		Expect(after.Sub(before)).To(Equal(23 * time.Hour))
	})

	It("keeps the wall-clock time across fall back", func() {
		s := scheduler.DailySchedule{Hour: 5, Location: detroit}
		before := s.Next(at(2026, 10, 31, 4, 0))
		after := s.Next(before)

		Expect(after.In(detroit).Hour()).To(Equal(5))
		Expect(after.Sub(before)).To(Equal(25 * time.Hour))
	})

	It("moves a skipped time past the transition", func() {
		s := scheduler.DailySchedule{Hour: 2, Minute: 30, Location: detroit}
		next := s.Next(at(2026, 3, 8, 0, 0)).In(detroit)

		Expect(next.Day()).To(Equal(8))
		Expect(next.Hour()).To(Equal(3))
		Expect(next.Minute()).To(Equal(30))
		Expect(next.UTC()).To(Equal(time.Date(2026, 3, 8, 7, 30, 0, 0, time.UTC)))
	})

	It("returns to the usual time the day after a skipped run", func() {
		s := scheduler.DailySchedule{Hour: 2, Minute: 30, Location: detroit}
		skipped := s.Next(at(2026, 3, 8, 0, 0))
		next := s.Next(skipped).In(detroit)

		Expect(next.Day()).To(Equal(9))
		Expect(next.Hour()).To(Equal(2))
		Expect(next.Minute()).To(Equal(30))
	})

	It("runs once at the first occurrence of a repeated time", func() {
		s := scheduler.DailySchedule{Hour: 1, Minute: 30, Location: detroit}
		first := s.Next(at(2026, 11, 1, 0, 0))
		_, offset := first.Zone()

		Expect(offset).To(Equal(-4 * 3600))
		Expect(s.Next(first).In(detroit).Day()).To(Equal(2))
	})

	It("computes in the schedule's zone whatever zone the input is in", func() {
		s := scheduler.DailySchedule{Hour: 5, Location: detroit}
		// 08:00 UTC is 04:00 in Detroit during summer time.
		Expect(s.Next(time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC))).To(BeTemporally("==", at(2026, 6, 10, 5, 0)))
	})
})

var _ = DescribeTable("ParseDailySchedule",
	func(in string, hour, minute int, ok bool) {
		s, err := scheduler.ParseDailySchedule(in, time.UTC)
		if !ok {
			Expect(err).To(HaveOccurred())
			return
		}
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Hour).To(Equal(hour))
		Expect(s.Minute).To(Equal(minute))
	},
	Entry("morning", "05:00", 5, 0, true),
	Entry("evening", "18:45", 18, 45, true),
	Entry("midnight is not a daily time", "24:00", 0, 0, false),
	Entry("garbage", "five", 0, 0, false),
)
