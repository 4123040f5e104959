package publisher_test

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/tidwall/gjson"

	"github.com/okian/trailvote/internal/adapters/mq/publisher"
	"github.com/okian/trailvote/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestResultPublisher(t *testing.T) {
	ctx := context.Background()
	res := model.VoteResult{BallotID: "b1", Trail: "alice", Voter: "v2", Author: "bob", Permlink: "p1", Weight: 4000, Status: model.StatusBroadcast, TxID: "tx"}

	Convey("Given a publisher with a working writer", t, func() {
		w := &fakeWriter{}
		p, err := publisher.NewResultPublisher(nil, "vote-results", publisher.WithWriter(w))
		So(err, ShouldBeNil)

		Convey("When a result is recorded", func() {
			So(p.Record(ctx, res), ShouldBeNil)

			Convey("Then one JSON message keyed by trail is written", func() {
				So(w.msgs, ShouldHaveLength, 1)
				msg := w.msgs[0]
				So(string(msg.Key), ShouldEqual, "alice")
				So(gjson.GetBytes(msg.Value, "ballot_id").String(), ShouldEqual, "b1")
				So(gjson.GetBytes(msg.Value, "status").String(), ShouldEqual, "broadcast")
				So(gjson.GetBytes(msg.Value, "weight").Int(), ShouldEqual, 4000)
				So(string(msg.Headers[0].Value), ShouldEqual, "broadcast")
			})
		})

		Convey("When it is closed", func() {
			So(p.Close(), ShouldBeNil)
			So(w.closed, ShouldBeTrue)
		})
	})

	Convey("Given a failing writer", t, func() {
		p, _ := publisher.NewResultPublisher(nil, "vote-results", publisher.WithWriter(&fakeWriter{err: errors.New("leader not available")}))

		Convey("Then the write error is returned", func() {
			err := p.Record(ctx, res)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "leader not available")
		})
	})

	Convey("Given no brokers and no writer", t, func() {
		_, err := publisher.NewResultPublisher(nil, "vote-results")
		So(errors.Is(err, publisher.ErrNoBrokers), ShouldBeTrue)
	})
}
