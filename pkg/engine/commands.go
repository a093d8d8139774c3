package engine

import (
	"context"
	"errors"
	"net/http"

	"github.com/getmockd/mockserver/pkg/httputil"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/serialization"
)

// Command is a control-plane path. Commands are only recognized on PUT.
type Command string

// Control-plane commands.
const (
	CommandReset           Command = "/reset"
	CommandClear           Command = "/clear"
	CommandClearRequestLog Command = "/clearRequestLog"
	CommandDumpToLog       Command = "/dumpToLog"
	CommandExpectation     Command = "/expectation"
	CommandRetrieve        Command = "/retrieve"
	CommandVerify          Command = "/verify"
	CommandVerifySequence  Command = "/verifySequence"
	CommandStatus          Command = "/status"
	CommandBind            Command = "/bind"
	CommandStop            Command = "/stop"
)

// Commands lists every control-plane command.
func Commands() []Command {
	return []Command{
		CommandReset, CommandClear, CommandClearRequestLog, CommandDumpToLog,
		CommandExpectation, CommandRetrieve, CommandVerify, CommandVerifySequence,
		CommandStatus, CommandBind, CommandStop,
	}
}

type commandFunc func(ctx context.Context, req *mock.HTTPRequest) *mock.HTTPResponse

func (h *Handler) commandTable() map[Command]commandFunc {
	return map[Command]commandFunc{
		CommandReset:           h.reset,
		CommandClear:           h.clear,
		CommandClearRequestLog: h.clearRequestLog,
		CommandDumpToLog:       h.dumpToLog,
		CommandExpectation:     h.expectation,
		CommandRetrieve:        h.retrieve,
		CommandVerify:          h.verify,
		CommandVerifySequence:  h.verifySequence,
		CommandStatus:          h.status,
		CommandBind:            h.bind,
		CommandStop:            h.stop,
	}
}

func badRequest(err error) *mock.HTTPResponse {
	return httputil.Text(http.StatusBadRequest, err.Error())
}

func (h *Handler) reset(_ context.Context, _ *mock.HTTPRequest) *mock.HTTPResponse {
	h.requests.Reset()
	h.registry.Reset()
	h.log.Info("reset expectations and request log")
	return httputil.Empty(http.StatusAccepted)
}

func (h *Handler) clear(_ context.Context, req *mock.HTTPRequest) *mock.HTTPResponse {
	pattern, err := serialization.DeserializeRequest(req.Body.Bytes())
	if err != nil {
		return badRequest(err)
	}
	expectations, err := h.registry.Clear(pattern)
	if err != nil {
		return badRequest(err)
	}
	requests, err := h.requests.Clear(pattern)
	if err != nil {
		return badRequest(err)
	}
	h.log.Info("cleared", "expectations", expectations, "requests", requests)
	return httputil.Empty(http.StatusAccepted)
}

func (h *Handler) clearRequestLog(_ context.Context, req *mock.HTTPRequest) *mock.HTTPResponse {
	pattern, err := serialization.DeserializeRequest(req.Body.Bytes())
	if err != nil {
		return badRequest(err)
	}
	n, err := h.requests.Clear(pattern)
	if err != nil {
		return badRequest(err)
	}
	h.log.Info("cleared request log", "requests", n)
	return httputil.Empty(http.StatusAccepted)
}

func (h *Handler) dumpToLog(_ context.Context, req *mock.HTTPRequest) *mock.HTTPResponse {
	pattern, err := serialization.DeserializeRequest(req.Body.Bytes())
	if err != nil {
		return badRequest(err)
	}
	if err := h.registry.DumpToLog(pattern); err != nil {
		return badRequest(err)
	}
	return httputil.Empty(http.StatusAccepted)
}

func (h *Handler) expectation(_ context.Context, req *mock.HTTPRequest) *mock.HTTPResponse {
	exps, err := serialization.DeserializeExpectations(req.Body.Bytes())
	if err != nil {
		return badRequest(err)
	}
	for _, exp := range exps {
		if err := h.registry.Add(exp); err != nil {
			return badRequest(err)
		}
	}
	return httputil.Empty(http.StatusCreated)
}

func (h *Handler) retrieve(_ context.Context, req *mock.HTTPRequest) *mock.HTTPResponse {
	pattern, err := serialization.DeserializeRequest(req.Body.Bytes())
	if err != nil {
		return badRequest(err)
	}

	var data []byte
	switch retrieveType(req) {
	case "expectation", "expectations", "active_expectations":
		exps, err := h.registry.Retrieve(pattern)
		if err != nil {
			return badRequest(err)
		}
		data, err = serialization.SerializeExpectations(exps)
		if err != nil {
			return badRequest(err)
		}
	default:
		requests, err := h.requests.Retrieve(pattern)
		if err != nil {
			return badRequest(err)
		}
		data, err = serialization.SerializeRequests(requests)
		if err != nil {
			return badRequest(err)
		}
	}
	return httputil.JSON(http.StatusOK, data)
}

func (h *Handler) verify(_ context.Context, req *mock.HTTPRequest) *mock.HTTPResponse {
	v, err := serialization.DeserializeVerification(req.Body.Bytes())
	if err != nil {
		return badRequest(err)
	}
	failure, err := h.verifier.Verify(v)
	if err != nil {
		return badRequest(err)
	}
	if failure != "" {
		return httputil.Text(http.StatusNotAcceptable, failure)
	}
	return httputil.Empty(http.StatusAccepted)
}

func (h *Handler) verifySequence(_ context.Context, req *mock.HTTPRequest) *mock.HTTPResponse {
	seq, err := serialization.DeserializeVerificationSequence(req.Body.Bytes())
	if err != nil {
		return badRequest(err)
	}
	failure, err := h.verifier.VerifySequence(seq)
	if err != nil {
		return badRequest(err)
	}
	if failure != "" {
		return httputil.Text(http.StatusNotAcceptable, failure)
	}
	return httputil.Empty(http.StatusAccepted)
}

var errNoController = errors.New("listeners are not managed by this handler")

func (h *Handler) status(_ context.Context, _ *mock.HTTPRequest) *mock.HTTPResponse {
	var ports []int
	if h.controller != nil {
		ports = h.controller.Ports()
	}
	data, err := serialization.SerializePorts(ports)
	if err != nil {
		return badRequest(err)
	}
	return httputil.JSON(http.StatusOK, data)
}

func (h *Handler) bind(ctx context.Context, req *mock.HTTPRequest) *mock.HTTPResponse {
	ports, err := serialization.DeserializePorts(req.Body.Bytes())
	if err != nil {
		return badRequest(err)
	}
	if h.controller == nil {
		return badRequest(errNoController)
	}
	bound, err := h.controller.Bind(ctx, ports)
	if err != nil {
		return badRequest(err)
	}
	data, err := serialization.SerializePorts(bound)
	if err != nil {
		return badRequest(err)
	}
	return httputil.JSON(http.StatusAccepted, data)
}

func (h *Handler) stop(_ context.Context, _ *mock.HTTPRequest) *mock.HTTPResponse {
	if h.controller != nil {
		// The response is written while listeners drain.
		go func() {
			if err := h.controller.Stop(context.Background()); err != nil {
				h.log.Error("stop failed", "error", err)
			}
		}()
	}
	return httputil.Empty(http.StatusAccepted)
}
