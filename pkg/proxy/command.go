package proxy

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aminofox/adproxy/pkg/config"
	"github.com/aminofox/adproxy/pkg/logger"
)

// commandResponse is the success envelope of the command endpoint.
type commandResponse struct {
	Status  string      `json:"status"`
	Command commandEcho `json:"command"`
}

// commandEcho echoes the accepted insertion command.
type commandEcho struct {
	Index    uint64 `json:"index"`
	InSec    int    `json:"in_sec"`
	Duration int    `json:"duration"`
	PodNum   int    `json:"pod_num"`
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleCommand injects one dynamic ad slot from the request query.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Insertion.Mode == config.InsertionStatic {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Status:  "error",
			Message: "Ad insertion is not supported in static mode.",
		})
		return
	}

	query := r.URL.Query()
	inSec, errIn := strconv.Atoi(query.Get("in"))
	duration, errDur := strconv.Atoi(query.Get("dur"))
	podNum, errPod := strconv.Atoi(query.Get("pod"))
	if errIn != nil || errDur != nil || errPod != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Status:  "error",
			Message: "Missing required query parameters",
		})
		return
	}

	start := time.Now().Add(time.Duration(inSec) * time.Second)
	slot := s.slots.InsertDynamic(start, float64(duration), podNum)

	s.logger.Info("Accepted insertion command",
		logger.String("slot", slot.Name()),
		logger.Time("start", slot.Start))

	s.writeJSON(w, http.StatusOK, commandResponse{
		Status: "success",
		Command: commandEcho{
			Index:    slot.Index,
			InSec:    inSec,
			Duration: duration,
			PodNum:   podNum,
		},
	})
}
