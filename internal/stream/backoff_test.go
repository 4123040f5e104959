package stream

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBackoff(t *testing.T) {
	Convey("Given a fresh backoff", t, func() {
		b := NewBackoff()

		Convey("Then it starts at one millisecond", func() {
			So(b.Current(), ShouldEqual, time.Millisecond)
		})

		Convey("When failures repeat", func() {
			var got []time.Duration
			for i := 0; i < 17; i++ {
				got = append(got, b.Next())
			}

			Convey("Then the delay doubles until it is capped at 12.8s", func() {
				So(got[0], ShouldEqual, time.Millisecond)
				So(got[1], ShouldEqual, 2*time.Millisecond)
				So(got[2], ShouldEqual, 4*time.Millisecond)
				So(got[13], ShouldEqual, 8192*time.Millisecond)
				So(got[14], ShouldEqual, 12800*time.Millisecond)
				So(got[16], ShouldEqual, 12800*time.Millisecond)
				So(b.Current(), ShouldEqual, 12800*time.Millisecond)
			})

			Convey("And a reset returns to the initial delay", func() {
				b.Reset()
				So(b.Current(), ShouldEqual, time.Millisecond)
				So(b.Next(), ShouldEqual, time.Millisecond)
				So(b.Current(), ShouldEqual, 2*time.Millisecond)
			})
		})

		Convey("When the current delay is reported", func() {
			b.Next()
			b.Next()

			Convey("Then it is the delay the next failure waits", func() {
				So(b.Current(), ShouldEqual, 4*time.Millisecond)
				So(b.Next(), ShouldEqual, 4*time.Millisecond)
			})
		})
	})
}
