package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cblog "github.com/cloud-barista/cb-log"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo"
	"github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	etcdkey "github.com/p2plab/p2p-testbed/pkg/etcd-key"
	"github.com/p2plab/p2p-testbed/pkg/file"
	"github.com/p2plab/p2p-testbed/pkg/model"
)

// CBLogger represents a logger to show execution processes according to the logging level.
var CBLogger *logrus.Logger
var config model.Config

func init() {
	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}
	exePath := filepath.Dir(ex)

	// Load cb-log config from the current directory (usually for the production)
	logConfPath := filepath.Join(exePath, "configs", "log_conf.yaml")
	if !file.Exists(logConfPath) {
		// Load cb-log config from the project directory (usually for development)
		path, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
		if err != nil {
			panic(err)
		}
		projectPath := strings.TrimSpace(string(path))
		logConfPath = filepath.Join(projectPath, "configs", "log_conf.yaml")
	}
	CBLogger = cblog.GetLoggerWithConfigPath("p2p-testbed", logConfPath)
	CBLogger.Debugf("Load %v", logConfPath)
}

var upgrader = websocket.Upgrader{}

var connectionPool = struct {
	sync.RWMutex
	connections map[*websocket.Conn]struct{}
}{
	connections: make(map[*websocket.Conn]struct{}),
}

// runUpdate is one state transition pushed to the browsers.
type runUpdate struct {
	RunID string `json:"runId"`
	State string `json:"state"`
	At    string `json:"at"`
}

// WebsocketHandler represents a handler to push run state transitions to
// the admin-web front-end.
func WebsocketHandler(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = ws.Close()
	}()

	connectionPool.Lock()
	connectionPool.connections[ws] = struct{}{}
	connectionPool.Unlock()

	defer func(connection *websocket.Conn) {
		connectionPool.Lock()
		delete(connectionPool.connections, connection)
		connectionPool.Unlock()
	}(ws)

	// Keep the connection open; pushes come from the etcd watch loop.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return nil
		}
	}
}

func sendMessageToAllPool(message []byte) {
	connectionPool.RLock()
	defer connectionPool.RUnlock()
	for connection := range connectionPool.connections {
		if err := connection.WriteMessage(websocket.TextMessage, message); err != nil {
			CBLogger.Warnf("Push to %v failed: %v", connection.RemoteAddr(), err)
		}
	}
}

// watchRunState forwards every run-state transition in etcd to the
// connected browsers.
func watchRunState(etcdClient *clientv3.Client) {
	CBLogger.Debugf("Start to watch \"%v\"", etcdkey.RunState)
	watchChan := etcdClient.Watch(context.Background(), etcdkey.RunState, clientv3.WithPrefix())
	for watchResponse := range watchChan {
		for _, event := range watchResponse.Events {
			if event.Type != mvccpb.PUT {
				continue
			}
			slicedKeys := strings.Split(string(event.Kv.Key), "/")
			update := runUpdate{
				RunID: slicedKeys[len(slicedKeys)-1],
				State: string(event.Kv.Value),
				At:    time.Now().UTC().Format(time.RFC3339),
			}
			message, err := json.Marshal(update)
			if err != nil {
				CBLogger.Error(err)
				continue
			}
			CBLogger.Tracef("Watch - %s %q : %q", event.Type, event.Kv.Key, event.Kv.Value)
			sendMessageToAllPool(message)
		}
	}
	CBLogger.Debugf("End to watch \"%v\"", etcdkey.RunState)
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>p2p-testbed runs</title></head>
<body>
<h2>p2p-testbed run states</h2>
<ul id="runs"></ul>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => {
  const u = JSON.parse(ev.data);
  const li = document.createElement("li");
  li.textContent = u.at + "  " + u.runId + "  " + u.state;
  document.getElementById("runs").prepend(li);
};
</script>
</body>
</html>`

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to the coordinator configuration")
	flag.Parse()

	var err error
	config, err = model.LoadConfig(*configPath)
	if err != nil {
		CBLogger.Errorf("Configuration error: %v", err)
		os.Exit(model.ExitConfiguration)
	}

	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   config.ETCD.Endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		CBLogger.Fatal(err)
	}
	defer func() {
		if errClose := etcdClient.Close(); errClose != nil {
			CBLogger.Error("Can't close the etcd client", errClose)
		}
	}()
	CBLogger.Infoln("The etcdClient is connected.")

	go watchRunState(etcdClient)

	CBLogger.Debug("Start.........")
	e := echo.New()
	e.HideBanner = true

	e.GET("/", func(c echo.Context) error {
		return c.HTML(http.StatusOK, indexPage)
	})
	e.GET("/ws", WebsocketHandler)

	adminWebURL := fmt.Sprintf("The p2p-testbed admin-web URL => http://%s:%s\n", config.AdminWeb.Host, config.AdminWeb.Port)
	fmt.Println("")
	fmt.Printf("\033[1;36m%s\033[0m", adminWebURL)
	fmt.Println("")

	e.Logger.Fatal(e.Start(":" + config.AdminWeb.Port))
	CBLogger.Debug("End.........")
}
