package channel

import (
	"errors"
	"fmt"
	"time"
)

// readLoop decodes frames until the transport fails or the session stops.
// Malformed frames are dropped; the next frame is still delivered.
func (s *Session) readLoop() {
	defer close(s.readerDone)
	defer s.recoverLoop("reader")

	frames := NewFrameReader(s.transport, s.opts.MaxFrameSize)
	for {
		frame, err := frames.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrFraming) {
				s.dropFrame(err, 0)
				continue
			}
			if s.stopping() {
				return
			}
			if isPeerGone(err) {
				s.logger.Info("peer_disconnected", "error", err.Error())
			} else {
				s.logger.Error("read_failed", "error", err.Error())
			}
			s.shutdown(brokenChannel("read", err))
			return
		}

		if len(trimFrame(frame)) == 0 {
			continue // keep-alive blank line
		}
		msg, err := Decode(frame)
		if err != nil {
			s.dropFrame(err, len(frame))
			continue
		}
		s.framesIn.Add(1)
		s.lastReceived.Store(time.Now().UnixNano())
		s.handler.HandleMessage(s.ID, msg)

		if s.stopping() {
			return
		}
	}
}

func (s *Session) dropFrame(err error, size int) {
	s.framesDropped.Add(1)
	s.logger.Warn("frame_dropped", "error", err.Error(), "size", size)
}

// writeLoop sends a heartbeat right away and then once per interval, and
// drains the outbound queue in between.
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	defer s.recoverLoop("writer")

	var tick <-chan time.Time
	if s.opts.WriteInterval > 0 {
		ticker := time.NewTicker(s.opts.WriteInterval)
		defer ticker.Stop()
		tick = ticker.C
		if !s.write(s.opts.Heartbeat(time.Now())) {
			return
		}
	}

	for {
		select {
		case <-s.quit:
			return
		case msg := <-s.outbox:
			if !s.write(msg) {
				return
			}
		case now := <-tick:
			if !s.write(s.opts.Heartbeat(now)) {
				return
			}
		}
	}
}

// write reports whether the writer should keep going. Unencodable messages
// are skipped; any other failure ends the session.
func (s *Session) write(msg Message) bool {
	err := s.writeMessage(msg)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrEncoding):
		s.logger.Error("message_encode_failed", "command", msg.Command(), "error", err.Error())
		return true
	case s.stopping():
		return false
	}
	if isPeerGone(err) {
		s.logger.Info("peer_unreachable", "error", err.Error())
	} else {
		s.logger.Error("write_failed", "error", err.Error())
	}
	s.shutdown(err)
	return false
}

// recoverLoop turns a panic inside a loop, including one raised by the
// Handler, into a broken channel instead of crashing the process.
func (s *Session) recoverLoop(loop string) {
	if r := recover(); r != nil {
		err := brokenChannel(loop, fmt.Errorf("panic: %v", r))
		s.logger.Error("session_loop_panic", "loop", loop, "error", err.Error())
		s.shutdown(err)
	}
}

func trimFrame(frame []byte) []byte {
	for len(frame) > 0 {
		switch frame[len(frame)-1] {
		case '\n', '\r', '\x00', ' ', '\t':
			frame = frame[:len(frame)-1]
			continue
		}
		break
	}
	return frame
}
