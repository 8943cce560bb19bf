package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitkit/internal/db"
	"github.com/habitkit/internal/logging"
	"github.com/habitkit/internal/service"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// maxInputBytes 限制单次请求体大小
const maxInputBytes = 1 << 20

// Services 汇总过程调用需要的业务服务
type Services struct {
	Habits    *service.HabitService
	Entries   *service.HabitEntryService
	Streaks   *service.StreakEngine
	Goals     *service.GoalService
	Progress  *service.GoalProgress
	Tasks     *service.TaskService
	Values    *service.ValueService
	States    *service.StateService
	Rewards   *service.RewardService
	Profiles  *service.ProfileService
	Dashboard *service.DashboardService
}

// API bundles shared dependencies for procedure handlers.
type API struct {
	db         *gorm.DB
	svc        Services
	procedures map[string]procedure
	log        logrus.FieldLogger
}

// NewAPI 构造处理器并注册全部过程
func NewAPI(gdb *gorm.DB, svc Services, log logrus.FieldLogger) *API {
	a := &API{
		db:         gdb,
		svc:        svc,
		procedures: make(map[string]procedure),
		log:        log,
	}
	a.registerHabitProcedures()
	a.registerGoalProcedures()
	a.registerTaskProcedures()
	a.registerValueProcedures()
	a.registerStateProcedures()
	a.registerRewardProcedures()
	a.registerUserProcedures()
	a.registerDashboardProcedures()
	return a
}

// Procedures 返回按字母排序的已注册过程名
func (a *API) Procedures() []string {
	names := make([]string, 0, len(a.procedures))
	for name := range a.procedures {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HandleProcedure 分发 /trpc/:procedure 请求
func (a *API) HandleProcedure(c *gin.Context) {
	if c.Query("batch") == "1" {
		a.handleBatch(c)
		return
	}

	proc, err := a.lookup(c.Param("procedure"), c.Request.Method)
	if err != nil {
		a.respondError(c, err)
		return
	}

	raw, err := readInput(c)
	if err != nil {
		a.respondError(c, err)
		return
	}

	data, err := proc.call(a.requestContext(c), raw)
	if err != nil {
		a.respondError(c, err)
		return
	}
	respondData(c, data)
}

// handleBatch 处理 a,b,c 形式的批量调用，输入为 {"0":...,"1":...}
func (a *API) handleBatch(c *gin.Context) {
	names := strings.Split(c.Param("procedure"), ",")

	raw, err := readInput(c)
	if err != nil {
		a.respondError(c, err)
		return
	}
	inputs := map[string]json.RawMessage{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			a.respondError(c, &inputError{err: fmt.Errorf("malformed batch input: %w", err)})
			return
		}
	}

	language := requestLanguage(c)
	rc := a.requestContext(c)
	results := make([]gin.H, 0, len(names))
	statuses := make(map[int]struct{})
	for i, name := range names {
		data, err := a.callOne(rc, name, c.Request.Method, inputs[strconv.Itoa(i)])
		if err != nil {
			apiErr := toAPIError(err, language)
			if apiErr.HTTPStatus >= http.StatusInternalServerError {
				a.log.WithError(err).WithField("procedure", name).Error("procedure failed")
			}
			statuses[apiErr.HTTPStatus] = struct{}{}
			results = append(results, gin.H{"error": apiErr})
			continue
		}
		statuses[http.StatusOK] = struct{}{}
		results = append(results, gin.H{"result": gin.H{"data": data}})
	}

	status := http.StatusOK
	if len(statuses) > 1 {
		status = http.StatusMultiStatus
	} else {
		for only := range statuses {
			status = only
		}
	}
	c.JSON(status, results)
}

func (a *API) callOne(rc *RequestContext, name, method string, raw json.RawMessage) (any, error) {
	proc, err := a.lookup(name, method)
	if err != nil {
		return nil, err
	}
	return proc.call(rc, raw)
}

func (a *API) lookup(name, method string) (procedure, error) {
	proc, ok := a.procedures[strings.TrimSpace(name)]
	if !ok {
		return procedure{}, fmt.Errorf("%w: %s", errProcedureNotFound, name)
	}
	if method != proc.kind.method() {
		return procedure{}, fmt.Errorf("%w: %s expects %s", errMethodNotAllowed, name, proc.kind.method())
	}
	return proc, nil
}

func (a *API) requestContext(c *gin.Context) *RequestContext {
	return &RequestContext{
		Ctx:      c.Request.Context(),
		UserID:   c.GetString(logging.UserIDKey),
		Language: requestLanguage(c),
	}
}

// readInput 查询从 ?input= 读取，变更从请求体读取
func readInput(c *gin.Context) (json.RawMessage, error) {
	if c.Request.Method == http.MethodGet {
		return json.RawMessage(c.Query("input")), nil
	}
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInputBytes+1))
	if err != nil {
		return nil, &inputError{err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxInputBytes {
		return nil, &inputError{err: errors.New("request body too large")}
	}
	return body, nil
}

// Health 通过数据库 ping 报告服务状态
func (a *API) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := a.db.DB()
	if err == nil {
		err = db.Ping(ctx, sqlDB)
	}
	if err != nil {
		a.log.WithError(err).Warn("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func deleted(id string) gin.H {
	return gin.H{"id": id, "deleted": true}
}
