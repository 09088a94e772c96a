package coord

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gokcedilek/bagel/kernels"
	"github.com/gokcedilek/bagel/util"
)

type ClientConfig = util.ClientConfig

// GraphClient sends queries to a coord. Results arrive on the channel
// returned by Start, in completion order.
type GraphClient struct {
	clientId string
	conn     *grpc.ClientConn
	notifyCh chan QueryResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient() *GraphClient {
	return &GraphClient{}
}

// Start connects to the coord at coordAddr. The connection is made
// lazily, so an unreachable coord shows up as a failed query.
func (c *GraphClient) Start(clientId string, coordAddr string) (chan QueryResult, error) {
	conn, err := grpc.Dial(
		coordAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}
	c.clientId = clientId
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.notifyCh = make(chan QueryResult, 1)
	return c.notifyCh, nil
}

// SendQuery checks query and sends it in the background.
func (c *GraphClient) SendQuery(query Query) error {
	if c.conn == nil {
		return errors.New("client not started")
	}
	queryType, err := kernels.ParseQueryType(query.QueryType)
	if err != nil {
		return err
	}
	query.QueryType = queryType
	if err := kernels.ValidateNodes(queryType, query.Nodes); err != nil {
		return err
	}
	if err := checkIds(query.Nodes); err != nil {
		return err
	}
	if query.ClientId == "" {
		query.ClientId = c.clientId
	}

	log.Debug().Str("type", queryType).Msg("SendQuery: query is queued up to be sent")
	c.wg.Add(1)
	go c.doQuery(query)
	return nil
}

func (c *GraphClient) doQuery(query Query) {
	defer c.wg.Done()
	result, err := c.invoke(c.ctx, methodStartQuery, query)
	if err != nil {
		log.Warn().Err(err).Msg("doQuery: error calling Coord.StartQuery")
		result = QueryResult{Query: query, Status: STATUS_FAILED, Error: err.Error()}
	}
	c.notifyCh <- result
}

// QueryStatus asks the coord for the state of a query.
func (c *GraphClient) QueryStatus(ctx context.Context, id string) (QueryResult, error) {
	if c.conn == nil {
		return QueryResult{}, errors.New("client not started")
	}
	return c.invoke(ctx, methodQueryStatus, QueryID{ID: id})
}

func (c *GraphClient) invoke(ctx context.Context, method string, req interface{}) (QueryResult, error) {
	in, err := toStruct(req)
	if err != nil {
		return QueryResult{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return QueryResult{}, err
	}
	var result QueryResult
	err = fromStruct(out, &result)
	return result, err
}

// Stop cancels outstanding queries. Their failures are still delivered,
// so the caller must keep draining the channel until it is closed.
func (c *GraphClient) Stop() {
	if c.conn == nil {
		return
	}
	c.cancel()
	go func() {
		c.wg.Wait()
		c.conn.Close()
		close(c.notifyCh)
	}()
}
