// Wstest tests Strand's [WebSocket client] against
// the fuzzing server of the [Autobahn Testsuite].
//
// [WebSocket client]: https://pkg.go.dev/github.com/tzrikka/strand/pkg/websocket
// [Autobahn Testsuite]: https://github.com/crossbario/autobahn-testsuite
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tzrikka/strand/internal/logger"
	"github.com/tzrikka/strand/pkg/websocket"
)

const (
	baseURL = "ws://127.0.0.1:9001"
	agent   = "strand"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	n := getCaseCount()
	log.Info().Int("n", n).Msg("case count")

	// Excluded in "config/fuzzingserver.json":
	//   - 12.* and 13.*: WebSocket compression.
	for i := range n {
		runCase(i + 1)
	}

	updateReports()
}

func dial(url string) (*websocket.Conn, error) {
	ctx := logger.WithContext(context.Background(), &log.Logger)
	return websocket.Dial(ctx, url)
}

// getCaseCount retrieves the number of enabled test cases from
// the Autobahn fuzzing server, using a WebSocket request.
func getCaseCount() int {
	conn, err := dial(baseURL + "/getCaseCount")
	if err != nil {
		logger.FatalError("dial error", err)
	}

	msg, ok := <-conn.IncomingMessages()
	if !ok {
		log.Debug().Msg("connection closed")
		return 0
	}

	n, err := strconv.Atoi(string(msg.Data))
	if err != nil {
		logger.FatalError("invalid test case count", err)
	}

	return n
}

// updateReports instructs the Autobahn fuzzing server to generate/update
// all the HTML and JSON files for all the test-case results.
func updateReports() {
	log.Info().Msg("updating reports")

	url := fmt.Sprintf("%s/updateReports?agent=%s", baseURL, agent)
	if _, err := dial(url); err != nil {
		logger.FatalError("dial error", err)
	}
}

func runCase(i int) {
	l := log.With().Int("case", i).Logger()
	l.Info().Msg("starting test")

	conn, err := dial(fmt.Sprintf("%s/runCase?case=%d&agent=%s", baseURL, i, agent))
	if err != nil {
		logger.FatalError("dial error", err)
	}

	// Echo loop.
	for {
		msg := <-conn.IncomingMessages()
		if msg.Data == nil {
			l.Debug().Msg("connection closed")
			break
		}

		l := l.With().Str("opcode", msg.Opcode.String()).Logger()
		l.Info().Int("length", len(msg.Data)).Msg("received message")

		switch msg.Opcode {
		case websocket.OpcodeText:
			err = <-conn.SendTextMessage(msg.Data)
		case websocket.OpcodeBinary:
			err = <-conn.SendBinaryMessage(msg.Data)
		default:
			l.Error().Msg("unexpected opcode in data message")
			os.Exit(1)
		}

		if err != nil {
			l.Err(err).Msg("echo error")
			conn.Close(websocket.StatusNormalClosure)
		}
	}
}
