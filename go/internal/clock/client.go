package clock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/models"
)

// Client is a typed Connect client for ClockService.
type Client struct {
	join        *connect.Client[TournamentRequest, SnapshotResponse]
	getState    *connect.Client[TournamentRequest, SnapshotResponse]
	pause       *connect.Client[TournamentRequest, SnapshotResponse]
	resume      *connect.Client[TournamentRequest, SnapshotResponse]
	adjustTime  *connect.Client[AdjustTimeRequest, SnapshotResponse]
	changeLevel *connect.Client[ChangeLevelRequest, SnapshotResponse]
	syncAll     *connect.Client[SyncAllRequest, SyncReport]
}

// NewClient creates a client against a clockd base URL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)

	return &Client{
		join:        connect.NewClient[TournamentRequest, SnapshotResponse](httpClient, baseURL+JoinProcedure, opts...),
		getState:    connect.NewClient[TournamentRequest, SnapshotResponse](httpClient, baseURL+GetStateProcedure, opts...),
		pause:       connect.NewClient[TournamentRequest, SnapshotResponse](httpClient, baseURL+PauseProcedure, opts...),
		resume:      connect.NewClient[TournamentRequest, SnapshotResponse](httpClient, baseURL+ResumeProcedure, opts...),
		adjustTime:  connect.NewClient[AdjustTimeRequest, SnapshotResponse](httpClient, baseURL+AdjustTimeProcedure, opts...),
		changeLevel: connect.NewClient[ChangeLevelRequest, SnapshotResponse](httpClient, baseURL+ChangeLevelProcedure, opts...),
		syncAll:     connect.NewClient[SyncAllRequest, SyncReport](httpClient, baseURL+SyncAllProcedure, opts...),
	}
}

func (c *Client) Join(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	return snapshotCall(ctx, c.join, &TournamentRequest{TournamentID: id.String()})
}

func (c *Client) GetState(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	return snapshotCall(ctx, c.getState, &TournamentRequest{TournamentID: id.String()})
}

func (c *Client) Pause(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	return snapshotCall(ctx, c.pause, &TournamentRequest{TournamentID: id.String()})
}

func (c *Client) Resume(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	return snapshotCall(ctx, c.resume, &TournamentRequest{TournamentID: id.String()})
}

func (c *Client) AdjustTime(ctx context.Context, id uuid.UUID, seconds int) (*models.ClockSnapshot, error) {
	return snapshotCall(ctx, c.adjustTime, &AdjustTimeRequest{TournamentID: id.String(), Seconds: seconds})
}

func (c *Client) ChangeLevel(ctx context.Context, id uuid.UUID, level int) (*models.ClockSnapshot, error) {
	return snapshotCall(ctx, c.changeLevel, &ChangeLevelRequest{TournamentID: id.String(), Level: level})
}

func (c *Client) SyncAll(ctx context.Context) (SyncReport, error) {
	resp, err := c.syncAll.CallUnary(ctx, connect.NewRequest(&SyncAllRequest{}))
	if err != nil {
		return SyncReport{}, fromConnectError(err)
	}
	return *resp.Msg, nil
}

func snapshotCall[Req any](ctx context.Context, client *connect.Client[Req, SnapshotResponse], req *Req) (*models.ClockSnapshot, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fromConnectError(err)
	}
	snap := resp.Msg.Snapshot
	return &snap, nil
}

// fromConnectError restores the sentinel errors so remote callers can use
// errors.Is the same way in-process callers do.
func fromConnectError(err error) error {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}
	switch cerr.Code() {
	case connect.CodeInvalidArgument:
		return fmt.Errorf("%w: %s", ErrValidation, cerr.Message())
	case connect.CodeNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, cerr.Message())
	case connect.CodeFailedPrecondition:
		return fmt.Errorf("%w: %s", ErrInvalidState, cerr.Message())
	case connect.CodeUnavailable:
		return &TransientError{Op: "remote clock call", Err: cerr}
	default:
		return err
	}
}
