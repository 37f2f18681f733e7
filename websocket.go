package ambientd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"golang.org/x/sync/errgroup"
)

// ColorFrame is the JSON body of /color/get and of every /ws message.
type ColorFrame struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
	// Error is only set on the last frame before the server closes the
	// socket.
	Error string `json:"error,omitempty"`
}

func colorFrame(c [3]int) ColorFrame {
	return ColorFrame{R: c[0], G: c[1], B: c[2]}
}

type closeFrame struct {
	Code   ws.StatusCode
	Reason string
}

func (f closeFrame) encode() []byte {
	return ws.NewCloseFrameBody(f.Code, f.Reason)
}

// websocketServer writes color frames to a single client. Client messages
// are read only to handle control frames.
type websocketServer struct {
	// Sending is a channel of frames to send to the client.
	Sending chan ColorFrame

	wsconn io.ReadWriteCloser
	logger *slog.Logger
}

func newWebsocketServer(wsconn io.ReadWriteCloser, logger *slog.Logger) *websocketServer {
	return &websocketServer{
		Sending: make(chan ColorFrame),
		wsconn:  wsconn,
		logger:  logger,
	}
}

// Send sends a frame to the client.
func (s *websocketServer) Send(ctx context.Context, frame ColorFrame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.Sending <- frame:
		return nil
	}
}

// SendError sends an error frame to the client. The server closes the
// connection after sending it.
func (s *websocketServer) SendError(ctx context.Context, err error) error {
	return s.Send(ctx, ColorFrame{Error: err.Error()})
}

func (s *websocketServer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		<-ctx.Done()

		s.logger.DebugContext(ctx,
			"closing websocket",
			"error", ctx.Err().Error())

		if closeErr := s.wsconn.Close(); closeErr != nil {
			s.logger.WarnContext(ctx,
				"failed to close websocket",
				"error", closeErr.Error())

			return fmt.Errorf("failed to close websocket: %w", closeErr)
		}

		return nil
	})

	errg.Go(func() error {
		defer cancel()

		var buf bytes.Buffer
		for {
			if _, err := wsReadData(&buf, s.wsconn, ws.StateServerSide, ws.OpText|ws.OpBinary); err != nil {
				var closedErr wsutil.ClosedError
				if errors.As(err, &closedErr) {
					s.logger.DebugContext(ctx,
						"received close frame from client")

					return nil
				}

				if ctx.Err() != nil {
					return ctx.Err()
				}

				return fmt.Errorf("failed to read from websocket: %w", err)
			}
			// Viewers have nothing to say.
		}
	})

	errg.Go(func() error {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()

			case frame := <-s.Sending:
				buf.Reset()
				if err := enc.Encode(frame); err != nil {
					return fmt.Errorf("failed to marshal frame: %w", err)
				}

				if err := wsutil.WriteServerText(s.wsconn, bytes.TrimSpace(buf.Bytes())); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return fmt.Errorf("failed to write to websocket: %w", err)
				}

				if frame.Error == "" {
					continue
				}

				closeFrame := closeFrame{
					Code:   ws.StatusNormalClosure,
					Reason: "error delivered to client",
				}

				s.logger.DebugContext(ctx,
					"sending close frame to client",
					"code", closeFrame.Code,
					"reason", closeFrame.Reason)

				if err := ws.WriteFrame(s.wsconn, ws.NewCloseFrame(closeFrame.encode())); err != nil {
					s.logger.WarnContext(ctx,
						"failed to write close frame",
						"error", err.Error())
				}

				// Give the client 2 seconds to answer the close frame
				// before dropping the connection.
				errg.Go(func() error {
					timer := time.NewTimer(2 * time.Second)
					defer timer.Stop()

					select {
					case <-timer.C:
						cancel()
					case <-ctx.Done():
					}
					return nil
				})

				return nil
			}
		}
	})

	return errg.Wait()
}

func wsReadData(dst *bytes.Buffer, src io.ReadWriter, s ws.State, want ws.OpCode) (ws.OpCode, error) {
	controlHandler := wsutil.ControlFrameHandler(src, s)
	rd := wsutil.Reader{
		Source:          src,
		State:           s,
		SkipHeaderCheck: false,
		OnIntermediate:  controlHandler,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return 0, err
		}
		if hdr.OpCode.IsControl() {
			if err := controlHandler(hdr, &rd); err != nil {
				return 0, err
			}
			continue
		}
		if hdr.OpCode&want == 0 {
			if err := rd.Discard(); err != nil {
				return 0, err
			}
			continue
		}

		dst.Reset()
		_, err = io.Copy(dst, &rd)
		return hdr.OpCode, err
	}
}
