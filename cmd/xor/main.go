package main

import (
	"flag"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/net"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/opt"
)

func main() {
	epochs := flag.Int("epochs", 5000, "training epochs")
	lr := flag.Float64("lr", 0.5, "learning rate")
	out := flag.String("out", filepath.Join(os.TempDir(), "xor_network.gob"), "where to save the trained network")
	flag.Parse()

	log.SetFlags(0)
	log.Println("=== XOR Training Example ===")

	cfg := opt.DefaultConfig()
	cfg.Type = opt.Momentum
	cfg.LearningRate = *lr
	cfg.Momentum = 0.5

	// XOR is not linearly separable; one hidden layer is enough
	network, err := net.NewBuilder().
		Input(2, 1, 1).
		Dense(4).
		Output(1).
		Loss(loss.MeanSquaredError).
		Optimizer(cfg).
		Logger(log.Default()).
		Build()
	if err != nil {
		log.Fatalf("build network: %v", err)
	}

	trainX := [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	trainY := [][]float64{{0}, {1}, {1}, {0}}

	sched := opt.NewReduceLROnPlateau(network, 0.5, 200, 1e-6, 0.01)
	for epoch := 0; epoch < *epochs; epoch++ {
		l, err := network.TrainBatch(trainX, trainY)
		if err != nil {
			log.Fatalf("epoch %d: %v", epoch, err)
		}
		sched.StepWithLoss(l)
		if epoch%500 == 0 {
			log.Printf("Epoch %d, Loss: %.6f, LR: %.4f", epoch, l, network.LearningRate())
		}
	}

	log.Println("Testing trained network:")
	for i := range trainX {
		pred, err := network.Predict(trainX[i])
		if err != nil {
			log.Fatalf("predict: %v", err)
		}
		log.Printf("Input: %v, Predicted: %.4f, Target: %v", trainX[i], pred[0], trainY[i][0])
	}

	if err := network.Save(*out); err != nil {
		log.Fatalf("save network: %v", err)
	}
	loaded, err := net.Load(*out)
	if err != nil {
		log.Fatalf("load network: %v", err)
	}
	log.Printf("Network saved to %s and loaded back", *out)

	for i := range trainX {
		a, err := network.Predict(trainX[i])
		if err != nil {
			log.Fatalf("predict: %v", err)
		}
		b, err := loaded.Predict(trainX[i])
		if err != nil {
			log.Fatalf("predict with loaded network: %v", err)
		}
		if math.Abs(a[0]-b[0]) > 1e-9 {
			log.Fatalf("loaded network differs on %v: %.6f vs %.6f", trainX[i], a[0], b[0])
		}
	}
	log.Println("All predictions match between original and loaded network")
}
