package engine

import (
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSeenSet(t *testing.T) {
	Convey("Given a seen-set with the default threshold", t, func() {
		s := NewSeenSet(0)

		Convey("When an event key is recorded for the first time", func() {
			seen := s.SeenAndRecord("0xabc-0")

			Convey("Then it is reported as new", func() {
				So(seen, ShouldBeFalse)
				So(s.Size(), ShouldEqual, 1)
			})

			Convey("And recording it again reports it as seen", func() {
				So(s.SeenAndRecord("0xabc-0"), ShouldBeTrue)
				So(s.Size(), ShouldEqual, 1)
			})

			Convey("And forgetting it allows it again", func() {
				s.Forget("0xabc-0")
				So(s.SeenAndRecord("0xabc-0"), ShouldBeFalse)
			})
		})

		Convey("When the set holds exactly the threshold", func() {
			for i := 0; i < DefaultSeenMax; i++ {
				s.SeenAndRecord(fmt.Sprintf("tx-%d", i))
			}

			Convey("Then a sweep keeps everything", func() {
				So(s.Sweep(), ShouldBeFalse)
				So(s.Size(), ShouldEqual, DefaultSeenMax)
			})

			Convey("And one more key makes the sweep evict all", func() {
				s.SeenAndRecord("tx-extra")
				So(s.Sweep(), ShouldBeTrue)
				So(s.Size(), ShouldEqual, 0)
				So(s.SeenAndRecord("tx-0"), ShouldBeFalse)
			})
		})
	})
}

func TestSeenSetConcurrent(t *testing.T) {
	Convey("Given a seen-set shared between the tick loop and the sweeper", t, func() {
		s := NewSeenSet(10)

		Convey("When many goroutines record the same key", func() {
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				fresh int
			)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if !s.SeenAndRecord("same") {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
					s.Sweep()
				}()
			}
			wg.Wait()

			Convey("Then exactly one of them sees it as new", func() {
				So(fresh, ShouldEqual, 1)
				So(s.Size(), ShouldEqual, 1)
			})
		})
	})
}
