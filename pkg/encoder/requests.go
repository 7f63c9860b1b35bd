package encoder

import (
	"fmt"
	"sort"

	"github.com/studiokit/devicelab/pkg/devicemodel"
)

// requestHandler executes one request type. decode extracts the typed
// request data; the returned object becomes the responseData field.
type requestHandler func(decode func(v interface{}) error) (interface{}, error)

// sceneItem is one entry of the scene-list response.
type sceneItem struct {
	SceneName  string `json:"sceneName" msgpack:"sceneName"`
	SceneIndex int    `json:"sceneIndex" msgpack:"sceneIndex"`
}

// buildHandlers wires the request table to the device model. The table is
// fixed at construction; unknown request types are answered with a
// structured failure, never a connection error.
func buildHandlers(model devicemodel.Encoder) map[string]requestHandler {
	h := make(map[string]requestHandler)

	h["GetVersion"] = func(func(interface{}) error) (interface{}, error) {
		names := make([]string, 0, len(h))
		for name := range h {
			names = append(names, name)
		}
		sort.Strings(names)
		return map[string]interface{}{
			"appVersion":        AppVersion,
			"rpcVersion":        RPCVersion,
			"availableRequests": names,
		}, nil
	}

	h["GetStatus"] = func(func(interface{}) error) (interface{}, error) {
		st := model.Status()
		return map[string]interface{}{
			"streaming":    st.Streaming,
			"recording":    st.Recording,
			"currentScene": st.CurrentScene,
		}, nil
	}

	h["StartStream"] = func(func(interface{}) error) (interface{}, error) {
		st := model.SetStreaming(true)
		return map[string]interface{}{"outputActive": st.Streaming}, nil
	}

	h["StopStream"] = func(func(interface{}) error) (interface{}, error) {
		st := model.SetStreaming(false)
		return map[string]interface{}{"outputActive": st.Streaming}, nil
	}

	h["ToggleStream"] = func(func(interface{}) error) (interface{}, error) {
		st := model.SetStreaming(!model.Status().Streaming)
		return map[string]interface{}{"outputActive": st.Streaming}, nil
	}

	h["StartRecord"] = func(func(interface{}) error) (interface{}, error) {
		st := model.SetRecording(true)
		return map[string]interface{}{"outputActive": st.Recording}, nil
	}

	h["StopRecord"] = func(func(interface{}) error) (interface{}, error) {
		st := model.SetRecording(false)
		return map[string]interface{}{"outputActive": st.Recording}, nil
	}

	h["GetCurrentScene"] = func(func(interface{}) error) (interface{}, error) {
		return map[string]interface{}{"sceneName": model.Status().CurrentScene}, nil
	}

	h["SetCurrentScene"] = func(decode func(interface{}) error) (interface{}, error) {
		var req struct {
			SceneName string `json:"sceneName" msgpack:"sceneName"`
		}
		if err := decode(&req); err != nil {
			return nil, fmt.Errorf("malformed request data: %w", err)
		}
		if err := model.SetCurrentScene(req.SceneName); err != nil {
			return nil, fmt.Errorf("no scene named %q", req.SceneName)
		}
		return map[string]interface{}{}, nil
	}

	h["GetSceneList"] = func(func(interface{}) error) (interface{}, error) {
		scenes := model.Scenes()
		items := make([]sceneItem, len(scenes))
		for i, name := range scenes {
			items[i] = sceneItem{SceneName: name, SceneIndex: i}
		}
		return map[string]interface{}{
			"scenes":       items,
			"currentScene": model.Status().CurrentScene,
		}, nil
	}

	return h
}
