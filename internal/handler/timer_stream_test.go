package handler_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
)

func dialTimer(t *testing.T, addr string, submissionID uint, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	url := fmt.Sprintf("ws://%s/api/v2/submissions/%d/timer/ws", addr, submissionID)
	return dialer.Dial(url, header)
}

func TestTimerStreamClosesOnceSubmitted(t *testing.T) {
	f := setupAPI(t)
	assessment := createAssessmentViaAPI(t, f)
	student := f.createStudent(t, "indah@example.com", 1)
	token := signToken(t, student.ID, "student")
	submission := startViaAPI(t, f, token, assessment.ID)

	addr := startServer(t, f.app)

	conn, resp, err := dialTimer(t, addr, submission.ID, token)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first dto.TimerResponse
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, submission.ID, first.SubmissionID)
	require.Equal(t, models.SubmissionStatusInProgress, first.Status)
	require.NotNil(t, first.RemainingSeconds)
	require.LessOrEqual(t, *first.RemainingSeconds, int64(30*60))

	submitResp := f.do(t, http.MethodPost, fmt.Sprintf("/api/v2/submissions/%d/submit", submission.ID), token, nil)
	require.Equal(t, fiber.StatusOK, submitResp.StatusCode)

	var last dto.TimerResponse
	for {
		var frame dto.TimerResponse
		if err := conn.ReadJSON(&frame); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
			break
		}
		last = frame
	}

	require.Contains(t, []string{models.SubmissionStatusSubmitted, models.SubmissionStatusGraded}, last.Status)
}

func TestTimerStreamRejectsStrangers(t *testing.T) {
	f := setupAPI(t)
	assessment := createAssessmentViaAPI(t, f)
	owner := f.createStudent(t, "joko@example.com", 1)
	stranger := f.createStudent(t, "kiki@example.com", 1)
	submission := startViaAPI(t, f, signToken(t, owner.ID, "student"), assessment.ID)

	addr := startServer(t, f.app)

	_, resp, err := dialTimer(t, addr, submission.ID, "")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := dialTimer(t, addr, submission.ID, signToken(t, stranger.ID, "student"))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "unexpected read error: %v", err)

	staffConn, _, err := dialTimer(t, addr, submission.ID, signToken(t, teacherID, "teacher"))
	require.NoError(t, err)
	defer staffConn.Close()
	require.NoError(t, staffConn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var frame dto.TimerResponse
	require.NoError(t, staffConn.ReadJSON(&frame))
	require.Equal(t, models.SubmissionStatusInProgress, frame.Status)
}
