// internal/websocket/router.go
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Router 将 RPC 方法映射到 App 方法
type Router struct {
	app     any
	methods map[string]reflect.Method
}

// NewRouter 创建新的路由器，exclude 中的方法不对外暴露
func NewRouter(app any, exclude ...string) *Router {
	r := &Router{
		app:     app,
		methods: make(map[string]reflect.Method),
	}

	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	// 通过反射获取所有公开方法
	appType := reflect.TypeOf(app)
	for i := 0; i < appType.NumMethod(); i++ {
		method := appType.Method(i)
		if method.IsExported() && !skip[method.Name] {
			r.methods[method.Name] = method
		}
	}

	return r
}

// Has 判断方法是否已注册
func (r *Router) Has(methodName string) bool {
	_, ok := r.methods[methodName]
	return ok
}

// Call 调用指定的 RPC 方法。第一个参数为 context.Context 时由 ctx 注入，不计入 params。
func (r *Router) Call(ctx context.Context, methodName string, params []json.RawMessage) (any, error) {
	method, ok := r.methods[methodName]
	if !ok {
		return nil, fmt.Errorf("method not found: %s", methodName)
	}

	methodType := method.Type
	args := []reflect.Value{reflect.ValueOf(r.app)}

	first := 1 // 跳过 receiver
	if methodType.NumIn() > 1 && methodType.In(1) == contextType {
		args = append(args, reflect.ValueOf(ctx))
		first = 2
	}

	numIn := methodType.NumIn() - first
	if len(params) != numIn {
		return nil, fmt.Errorf("method %s expects %d params, got %d", methodName, numIn, len(params))
	}

	// 构建调用参数
	for i, raw := range params {
		value, err := decodeParam(raw, methodType.In(first+i))
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		args = append(args, value)
	}

	return processResults(method.Func.Call(args))
}

// decodeParam 将 JSON 参数解码为目标类型
func decodeParam(raw json.RawMessage, targetType reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(targetType)
	if len(raw) == 0 || string(raw) == "null" {
		return ptr.Elem(), nil
	}
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot decode into %s: %w", targetType, err)
	}
	return ptr.Elem(), nil
}

// processResults 处理方法返回值
func processResults(results []reflect.Value) (any, error) {
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		// 检查是否是 error
		if results[0].Type().Implements(errorType) {
			if !results[0].IsNil() {
				return nil, results[0].Interface().(error)
			}
			return nil, nil
		}
		return results[0].Interface(), nil
	case 2:
		// 假设第二个是 error
		if !results[1].IsNil() {
			return nil, results[1].Interface().(error)
		}
		return results[0].Interface(), nil
	default:
		// 多个返回值，返回数组
		var result []any
		for i := 0; i < len(results)-1; i++ {
			result = append(result, results[i].Interface())
		}
		// 检查最后一个是否是 error
		last := results[len(results)-1]
		if last.Type().Implements(errorType) && !last.IsNil() {
			return nil, last.Interface().(error)
		}
		return result, nil
	}
}
