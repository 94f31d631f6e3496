package registry

import (
	"fmt"

	"github.com/cuemby/warren/pkg/hosterrors"
)

func errToolNotFound(pluginName, id string) error {
	return hosterrors.New(hosterrors.KindInvocation, pluginName, "Invoke",
		fmt.Errorf("tool %q is not registered for this plugin", id))
}

func errGuideNotFound(id string) error {
	return hosterrors.New(hosterrors.KindInvocation, "", "GetSystemPrompt",
		fmt.Errorf("guide %q is not registered", id))
}
